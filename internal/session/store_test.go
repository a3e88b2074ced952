package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/chatmodel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestCreateAndResolveSession(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, chatmodel.KindDocument, "doc-1", "report.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)

	got := store.Resolve(ctx, sess.SessionID)
	assert.Equal(t, chatmodel.KindDocument, got.Kind)
	assert.Equal(t, "doc-1", got.DocID)
	assert.Equal(t, "report.pdf", got.Filename)

	ttl := mr.TTL(sessionKeyPrefix + sess.SessionID)
	assert.Equal(t, config.SessionTTL, ttl)
}

func TestResolve_UnknownSessionIsGeneral(t *testing.T) {
	store, _ := newTestStore(t)

	got := store.Resolve(context.Background(), "never-created")
	assert.Equal(t, chatmodel.KindGeneral, got.Kind)
	assert.Equal(t, "never-created", got.SessionID)
	assert.Empty(t, got.DocID)
}

func TestResolve_ExpiredSessionIsGeneral(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, chatmodel.KindDocument, "doc-1", "a.pdf")
	require.NoError(t, err)

	mr.FastForward(config.SessionTTL + time.Minute)

	got := store.Resolve(ctx, sess.SessionID)
	assert.Equal(t, chatmodel.KindGeneral, got.Kind)
}

func TestCreateSession_GeneralIgnoresDocFields(t *testing.T) {
	store, _ := newTestStore(t)

	sess, err := store.CreateSession(context.Background(), chatmodel.KindGeneral, "doc-1", "a.pdf")
	require.NoError(t, err)
	assert.Empty(t, sess.DocID)
	assert.Empty(t, sess.Filename)
}

func TestHistory_AppendAndReadBack(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := chatmodel.ConversationRecord{
		Question:  "what is in the report?",
		Answer:    "figures and text",
		Sources:   []string{"report.pdf"},
		Model:     "test-model",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	require.NoError(t, store.AppendMessage(ctx, "s1", rec))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.Question, history[0].Question)
	assert.Equal(t, rec.Answer, history[0].Answer)
	assert.Equal(t, rec.Sources, history[0].Sources)
}

func TestHistory_TrimmedToNewestEntries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	total := config.ConversationMax + 5
	for i := 0; i < total; i++ {
		rec := chatmodel.ConversationRecord{Question: fmt.Sprintf("q%d", i)}
		require.NoError(t, store.AppendMessage(ctx, "s1", rec))
	}

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, config.ConversationMax)

	// oldest entries dropped, newest retained in order
	assert.Equal(t, fmt.Sprintf("q%d", total-config.ConversationMax), history[0].Question)
	assert.Equal(t, fmt.Sprintf("q%d", total-1), history[len(history)-1].Question)
}

func TestHistory_ExpiryRefreshedOnAppend(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, "s1", chatmodel.ConversationRecord{Question: "q1"}))
	mr.FastForward(config.ConversationTTL / 2)
	require.NoError(t, store.AppendMessage(ctx, "s1", chatmodel.ConversationRecord{Question: "q2"}))

	assert.Equal(t, config.ConversationTTL, mr.TTL(convoKeyPrefix+"s1"))
}

func TestClearHistory_Idempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, "s1", chatmodel.ConversationRecord{Question: "q"}))
	require.NoError(t, store.ClearHistory(ctx, "s1"))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	// clearing again is not an error
	require.NoError(t, store.ClearHistory(ctx, "s1"))
}

func TestAnswerCache_ScopeSeparation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.StoreAnswer(ctx, "what is this?", "doc-1", chatmodel.ChatResult{Response: "doc answer"})

	got, ok := store.CachedAnswer(ctx, "what is this?", "doc-1")
	require.True(t, ok)
	assert.Equal(t, "doc answer", got.Response)

	// same question, different scope: must be a miss
	_, ok = store.CachedAnswer(ctx, "what is this?", "doc-2")
	assert.False(t, ok)
	_, ok = store.CachedAnswer(ctx, "what is this?", "")
	assert.False(t, ok)
}

func TestAnswerCache_Expires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	store.StoreAnswer(ctx, "q", "", chatmodel.ChatResult{Response: "a"})
	_, ok := store.CachedAnswer(ctx, "q", "")
	require.True(t, ok)

	mr.FastForward(config.QueryCacheTTL + time.Second)
	_, ok = store.CachedAnswer(ctx, "q", "")
	assert.False(t, ok)
}

func TestSummaryCache_RoundtripAndInvalidate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, ok := store.CachedSummary(ctx, "doc-1")
	require.False(t, ok)

	store.StoreSummary(ctx, "doc-1", chatmodel.ChatResult{Response: "a short summary"})
	got, ok := store.CachedSummary(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, "a short summary", got.Response)

	store.InvalidateSummary(ctx, "doc-1")
	_, ok = store.CachedSummary(ctx, "doc-1")
	assert.False(t, ok)
}

func TestRateCheck_AllowsWithinWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < config.RateLimitPerWindow; i++ {
		assert.True(t, store.RateCheck(ctx, "1.2.3.4"), "request %d should be allowed", i)
	}
	assert.False(t, store.RateCheck(ctx, "1.2.3.4"), "request over the limit should be denied")

	// a different subject has its own counter
	assert.True(t, store.RateCheck(ctx, "5.6.7.8"))
}

func TestRateCheck_WindowResets(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < config.RateLimitPerWindow+1; i++ {
		store.RateCheck(ctx, "1.2.3.4")
	}
	require.False(t, store.RateCheck(ctx, "1.2.3.4"))

	mr.FastForward(config.RateLimitWindow + time.Second)
	assert.True(t, store.RateCheck(ctx, "1.2.3.4"))
}

func TestRateCheck_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client)
	mr.Close()

	assert.True(t, store.RateCheck(context.Background(), "1.2.3.4"))
}
