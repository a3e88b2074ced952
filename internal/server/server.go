// Package server assembles the chi router and owns the HTTP
// lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/handlers"
	"github.com/docchat/docchat/internal/identity"
	"github.com/docchat/docchat/internal/middleware"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Server struct {
	http   *http.Server
	logger *logx.Logger
}

func New(listenAddr string, h *handlers.Handler, auth identity.Provider, sessions *session.Store) *Server {
	return &Server{
		http: &http.Server{
			Addr:         listenAddr,
			Handler:      NewRouter(h, auth, sessions),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logx.New("server"),
	}
}

// NewRouter wires every route with its middleware chain.
func NewRouter(h *handlers.Handler, auth identity.Provider, sessions *session.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Trace)
	r.Use(middleware.Metrics)

	// unauthenticated surface
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	burst := middleware.NewIPRateLimiter(
		rate.Limit(config.RateLimitPerSecond), config.BurstRateLimitPerSecond)

	// authenticated API
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		r.Use(middleware.BurstLimit(burst))
		r.Use(middleware.SubjectLimit(sessions))

		r.Post("/documents/upload", h.Upload)
		r.Post("/documents/upload-text", h.UploadText)
		r.Get("/documents", h.ListDocuments)
		r.Delete("/documents/{doc_id}", h.DeleteDocument)

		r.Post("/chat", h.Chat)
		r.Get("/chat/history/{session_id}", h.GetHistory)
		r.Delete("/chat/history/{session_id}", h.ClearHistory)

		r.Post("/summary/{doc_id}", h.Summary)
		r.Get("/stats", h.Stats)
	})

	return r
}

// ListenAndServe blocks until the server stops. A graceful shutdown
// is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, config.ShutdownContextTimeout)
	defer cancel()

	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
