// Package session holds all conversational state in Redis: sessions,
// bounded per-session history, the query response cache and the
// per-subject rate counter. Everything here is expirable; losing Redis
// loses conversation continuity, never documents.
package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/chatmodel"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	convoKeyPrefix   = "convo:"
	cacheKeyPrefix   = "query:"
	summaryKeyPrefix = "summary:"
	rateKeyPrefix    = "rate:"
)

type Store struct {
	client *redis.Client
	logger *logx.Logger
}

// Open connects to Redis and verifies the connection with a short ping.
func Open(ctx context.Context, addr string) (*Store, error) {
	db, err := strconv.Atoi(config.Env("REDIS_DB", strconv.Itoa(config.RedisDB)))
	if err != nil {
		db = config.RedisDB
	}
	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              config.Env("REDIS_PASSWORD", config.RedisPassword),
		DB:                    db,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		logger: logx.New("session"),
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// CreateSession registers a new session. Document sessions carry the
// doc_id and filename they are scoped to; general sessions carry
// neither and search across every document.
func (s *Store) CreateSession(ctx context.Context, kind chatmodel.SessionKind, docID, filename string) (chatmodel.Session, error) {
	sess := chatmodel.Session{
		SessionID: uuid.New().String(),
		DocID:     docID,
		Filename:  filename,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Kind:      kind,
	}
	if kind == chatmodel.KindGeneral {
		sess.DocID = ""
		sess.Filename = ""
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return chatmodel.Session{}, fmt.Errorf("marshalling session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.SessionID, data, config.SessionTTL).Err(); err != nil {
		return chatmodel.Session{}, fmt.Errorf("saving session: %w", err)
	}

	s.logger.With("traceId", ctx.Value(config.TraceIDKey)).
		Debug("session created", "session_id", sess.SessionID, "kind", string(kind))
	return sess, nil
}

// Resolve looks a session up by id. Unknown, expired or unreadable
// sessions degrade to a general-knowledge session with the same id so
// a chat request never fails on session state alone.
func (s *Store) Resolve(ctx context.Context, sessionID string) chatmodel.Session {
	fallback := chatmodel.Session{SessionID: sessionID, Kind: chatmodel.KindGeneral}

	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return fallback
	}
	if err != nil {
		s.logger.With("traceId", ctx.Value(config.TraceIDKey)).
			Warn("session lookup failed, treating as general", "session_id", sessionID, "error", err)
		return fallback
	}

	var sess chatmodel.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("corrupt session record, treating as general", "session_id", sessionID, "error", err)
		return fallback
	}
	return sess
}

// AppendMessage pushes one exchange onto the session's history, trims
// it to the newest entries and refreshes the expiry. The trim and the
// sliding TTL keep abandoned sessions from accumulating.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, rec chatmodel.ConversationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling conversation record: %w", err)
	}

	key := convoKeyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -int64(config.ConversationMax), -1)
	pipe.Expire(ctx, key, config.ConversationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending conversation record: %w", err)
	}
	return nil
}

// History returns the retained exchanges, oldest first. Entries that
// fail to decode are skipped rather than failing the whole read.
func (s *Store) History(ctx context.Context, sessionID string) ([]chatmodel.ConversationRecord, error) {
	raw, err := s.client.LRange(ctx, convoKeyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading conversation history: %w", err)
	}

	records := make([]chatmodel.ConversationRecord, 0, len(raw))
	for _, item := range raw {
		var rec chatmodel.ConversationRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skipping corrupt history entry", "session_id", sessionID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ClearHistory drops the conversation list. Idempotent: clearing a
// session with no history succeeds.
func (s *Store) ClearHistory(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, convoKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clearing conversation history: %w", err)
	}
	return nil
}

// cacheKey fingerprints a query within its retrieval scope. The same
// question against a different document is a different cache entry.
func cacheKey(query, docID string) string {
	sum := md5.Sum([]byte(query))
	scope := docID
	if scope == "" {
		scope = "general"
	}
	return cacheKeyPrefix + hex.EncodeToString(sum[:]) + ":" + scope
}

// CachedAnswer returns the cached response for (query, scope) if one
// exists. Cache errors are treated as misses.
func (s *Store) CachedAnswer(ctx context.Context, query, docID string) (chatmodel.ChatResult, bool) {
	data, err := s.client.Get(ctx, cacheKey(query, docID)).Bytes()
	if err == redis.Nil {
		return chatmodel.ChatResult{}, false
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "error", err)
		return chatmodel.ChatResult{}, false
	}

	var result chatmodel.ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("corrupt cache entry, treating as miss", "error", err)
		return chatmodel.ChatResult{}, false
	}
	return result, true
}

// StoreAnswer caches a successful response. Failures are logged and
// swallowed: the answer was already produced, caching is best effort.
func (s *Store) StoreAnswer(ctx context.Context, query, docID string, result chatmodel.ChatResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("could not marshal cache entry", "error", err)
		return
	}
	if err := s.client.Set(ctx, cacheKey(query, docID), data, config.QueryCacheTTL).Err(); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}

// CachedSummary and StoreSummary hold per-document summary payloads,
// keyed by doc_id alone since a summary has no query variance.
func (s *Store) CachedSummary(ctx context.Context, docID string) (chatmodel.ChatResult, bool) {
	data, err := s.client.Get(ctx, summaryKeyPrefix+docID).Bytes()
	if err == redis.Nil {
		return chatmodel.ChatResult{}, false
	}
	if err != nil {
		s.logger.Warn("summary cache read failed, treating as miss", "error", err)
		return chatmodel.ChatResult{}, false
	}

	var result chatmodel.ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("corrupt summary cache entry, treating as miss", "error", err)
		return chatmodel.ChatResult{}, false
	}
	return result, true
}

func (s *Store) StoreSummary(ctx context.Context, docID string, result chatmodel.ChatResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("could not marshal summary cache entry", "error", err)
		return
	}
	if err := s.client.Set(ctx, summaryKeyPrefix+docID, data, config.SummaryCacheTTL).Err(); err != nil {
		s.logger.Warn("summary cache write failed", "error", err)
	}
}

// InvalidateSummary drops a cached summary, used when its document is
// deleted.
func (s *Store) InvalidateSummary(ctx context.Context, docID string) {
	if err := s.client.Del(ctx, summaryKeyPrefix+docID).Err(); err != nil {
		s.logger.Warn("summary cache invalidation failed", "doc_id", docID, "error", err)
	}
}

// RateCheck counts a request against the subject's fixed window and
// reports whether it is allowed. The counter key expires with the
// window, resetting the count. Redis errors fail open: a broken
// limiter must not take the API down with it.
func (s *Store) RateCheck(ctx context.Context, subject string) bool {
	key := rateKeyPrefix + subject

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing request", "subject", subject, "error", err)
		return true
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, config.RateLimitWindow).Err(); err != nil {
			s.logger.Warn("could not set rate window expiry", "subject", subject, "error", err)
		}
	}
	return count <= int64(config.RateLimitPerWindow)
}
