package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/internal/embed/gemini"
	"github.com/docchat/docchat/internal/embed/openaiembed"
	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/handlers"
	"github.com/docchat/docchat/internal/identity"
	"github.com/docchat/docchat/internal/ingest"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/llm/geminillm"
	"github.com/docchat/docchat/internal/llm/openaillm"
	"github.com/docchat/docchat/internal/notify"
	"github.com/docchat/docchat/internal/responder"
	"github.com/docchat/docchat/internal/server"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/internal/vectorindex/localindex"
	"github.com/docchat/docchat/internal/vectorindex/qdrantindex"
	"github.com/docchat/docchat/pkg/logx"
)

func main() {
	logx.Init(config.IsProd, config.LogLevelProd)
	logger := logx.New("main")

	var listenAddr, dataDir string
	flag.StringVar(&listenAddr, "listen-addr", config.Env("LISTEN_ADDR", config.ServerListenAddr), "server listen address")
	flag.StringVar(&dataDir, "data-dir", config.Env("DATA_DIR", config.DataDirDefault), "storage directory for the local index")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// every dependency is constructed here and injected; nothing is
	// initialized behind a package-level singleton
	embedder, model, err := buildProviders(ctx)
	if err != nil {
		logger.Error("provider initialization failed", "error", err)
		os.Exit(1)
	}

	index, err := buildIndex(ctx, embedder, dataDir)
	if err != nil {
		logger.Error("vector index initialization failed", "error", err)
		os.Exit(1)
	}

	sessions, err := session.Open(ctx, config.Env("REDIS_ADDR", config.RedisAddr))
	if err != nil {
		logger.Error("session store initialization failed", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	queue := notify.NewQueue(notify.NewLogSender())
	queue.Start(ctx)

	ingestSvc := ingest.New(
		extract.New(extract.DetectOCR()),
		index, sessions, queue,
		os.Getenv("NOTIFY_ADDRESS"),
	)
	resp := responder.New(index, sessions, model)
	auth := identity.NewStaticToken(os.Getenv("API_AUTH_TOKEN"))

	h := handlers.New(ingestSvc, resp, sessions, index)
	srv := server.New(listenAddr, h, auth, sessions)

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if stats, err := index.Stats(ctx); err == nil {
		logger.Info("vector index active", "backend", stats.Backend,
			"documents", stats.DocumentCount, "chunks", stats.ChunkCount)
	}

	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server crashed", "error", err)
		os.Exit(1)
	}

	queue.Wait()
	logger.Info("stopped")
}

// buildProviders picks the embedding and generation backends from the
// configured API keys: Gemini is the default, OpenAI the alternative.
func buildProviders(ctx context.Context) (embed.Embedder, llm.Provider, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		embedder, err := gemini.New(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		model, err := geminillm.New(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		return embedder, model, nil
	}

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		logx.New("main").Error("no GEMINI_API_KEY or OPENAI_API_KEY configured")
		os.Exit(1)
	}
	return openaiembed.New(key), openaillm.New(key), nil
}

// buildIndex selects the index backend explicitly from VECTOR_BACKEND;
// there is no silent fallback between backends, the choice is visible
// in /stats.
func buildIndex(ctx context.Context, embedder embed.Embedder, dataDir string) (vectorindex.Index, error) {
	switch config.Env("VECTOR_BACKEND", "local") {
	case "qdrant":
		port, err := strconv.Atoi(config.Env("QDRANT_PORT", strconv.Itoa(config.QdrantGrpcPort)))
		if err != nil {
			port = config.QdrantGrpcPort
		}
		return qdrantindex.Open(ctx, embedder, qdrantindex.Options{
			Host:       config.Env("QDRANT_HOST", config.QdrantHost),
			Port:       port,
			UseTLS:     config.QdrantUseTLS,
			Collection: config.Env("QDRANT_COLLECTION", config.QdrantCollection),
			DataDir:    dataDir,
		})
	default:
		return localindex.Open(dataDir, embedder)
	}
}
