package config

import (
	"log/slog"
	"os"
	"time"
)

const (
	IsProd       = false
	LogLevelProd = slog.LevelInfo
	TraceIDKey   = "traceId"

	//burst limiting per client IP
	RateLimitPerSecond      = 2
	BurstRateLimitPerSecond = 5

	//fixed-window limiting per authenticated subject
	RateLimitWindow   = 60 * time.Second
	RateLimitPerWindow = 30

	//segmenter
	ChunkSize    = 1000
	ChunkOverlap = 200

	//extraction
	MinExtractedTextLen  = 50
	PageExtractTimeout   = 10 * time.Second
	MaxUploadSizeBytes   = 32 << 20 //32mb

	//retrieval
	ChatTopK    = 5
	SummaryTopK = 15

	//embeddings
	EmbeddingDimension int32 = 1536
	GeminiModelName          = "gemini-2.5-flash-lite-preview-09-2025"
	GeminiEmbeddingModel     = "gemini-embedding-001"
	OpenAIModelName          = "gpt-4o-mini"
	OpenAIEmbeddingModel     = "text-embedding-3-small"

	ModelTemperature   float32 = 0.7
	SummaryTemperature float32 = 0.5
	MaxOutputTokens    int32   = 1024
	SummaryMaxTokens   int32   = 2048

	//session store
	SessionTTL      = 7 * 24 * time.Hour
	ConversationTTL = 24 * time.Hour
	ConversationMax = 10
	QueryCacheTTL   = time.Hour
	SummaryCacheTTL = 24 * time.Hour

	//server timeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 30 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	ServerListenAddr = ":3000"

	//vectorDB
	QdrantCollection = "docchat-chunks"
	QdrantHost       = "127.0.0.1"
	QdrantGrpcPort   = 6334
	QdrantUseTLS     = false

	//redis
	RedisAddr     = "127.0.0.1:6379"
	RedisPassword = ""
	RedisDB       = 0

	//notifier
	NotifyQueueSize  = 64
	NotifyRetryDelay = 2 * time.Second

	//local index storage
	DataDirDefault = "data"
)

// Env returns the environment override for key, or fallback when unset.
// Clients read their connection settings through this at construction
// time so tests can run without any environment prepared.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
