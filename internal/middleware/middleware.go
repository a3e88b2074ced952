// Package middleware holds the request-path cross-cutting concerns:
// trace injection, authentication, two layers of rate limiting and
// request metrics. Each is a standard chi middleware so the chain is
// visible at route registration.
package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/identity"
	"github.com/docchat/docchat/internal/metrics"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/google/uuid"
)

type subjectKey struct{}

// Subject returns the authenticated subject stored by Authenticate.
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}

// Trace ensures every request carries a trace id, minting one when the
// caller didn't send X-Trace-Id.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := r.Header.Get("X-Trace-Id")
		if trace == "" {
			trace = uuid.New().String()
		}
		w.Header().Set("X-Trace-Id", trace)
		ctx := context.WithValue(r.Context(), config.TraceIDKey, trace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Metrics labels the request counter with path and final status code.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc()
	})
}

// Authenticate verifies the bearer credential and stores the subject
// in the request context for downstream rate limiting.
func Authenticate(provider identity.Provider) func(http.Handler) http.Handler {
	logger := logx.New("middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := provider.Verify(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("unauthorized request", "path", r.URL.Path, "ip", clientIP(r))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectLimit applies the fixed-window counter in the session store,
// keyed by authenticated subject and client IP. The store fails open,
// so a Redis outage never rejects traffic here.
func SubjectLimit(sessions *session.Store) func(http.Handler) http.Handler {
	logger := logx.New("middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Subject(r.Context()) + ":" + clientIP(r)
			if !sessions.RateCheck(r.Context(), key) {
				logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BurstLimit is the in-process token-bucket guard per client IP,
// catching floods before they reach Redis.
func BurstLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	logger := logx.New("middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Limiter(ip).Allow() {
				logger.Warn("burst limit exceeded", "ip", ip, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": message, "code": code})
}
