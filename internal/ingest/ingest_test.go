package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/docchat/docchat/internal/domain/chatmodel"
	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIndex struct {
	onStore  func(chunks []docmodel.Chunk, filename string) (string, error)
	onDelete func(docID string) error
	stored   [][]docmodel.Chunk
}

func (m *mockIndex) Store(_ context.Context, chunks []docmodel.Chunk, filename string) (string, error) {
	m.stored = append(m.stored, chunks)
	if m.onStore != nil {
		return m.onStore(chunks, filename)
	}
	return "doc-1", nil
}

func (m *mockIndex) Search(_ context.Context, _ string, _ int) ([]docmodel.SearchHit, error) {
	return nil, nil
}

func (m *mockIndex) SearchFiltered(_ context.Context, _ string, _ int, _ map[string]string) ([]docmodel.SearchHit, error) {
	return nil, nil
}

func (m *mockIndex) Delete(_ context.Context, docID string) error {
	if m.onDelete != nil {
		return m.onDelete(docID)
	}
	return nil
}

func (m *mockIndex) List(_ context.Context) ([]docmodel.Document, error) { return nil, nil }
func (m *mockIndex) Stats(_ context.Context) (docmodel.IndexStats, error) {
	return docmodel.IndexStats{}, nil
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) Send(address, subject, body string) {
	m.sent = append(m.sent, subject)
}

func newTestSessions(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewWithClient(client)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIngestText_FullPipeline(t *testing.T) {
	idx := &mockIndex{}
	notifier := &mockNotifier{}
	sessions := newTestSessions(t)
	svc := New(extract.New(nil), idx, sessions, notifier, "ops@example.com")
	ctx := context.Background()

	text := strings.Repeat("Hello world. ", 200)
	result, err := svc.IngestText(ctx, text, "hello.txt")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocID)
	assert.Equal(t, "hello.txt", result.Filename)
	require.NotEmpty(t, result.SessionID)

	// ~2600 chars at chunk_size=1000 overlap=200 lands in 3-4 chunks
	require.Len(t, idx.stored, 1)
	chunkCount := len(idx.stored[0])
	assert.GreaterOrEqual(t, chunkCount, 3)
	assert.LessOrEqual(t, chunkCount, 4)
	assert.Equal(t, chunkCount, result.ChunkCount)
	for i, c := range idx.stored[0] {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, len(c.Text), 1000)
	}

	// the minted session is document-scoped
	sess := sessions.Resolve(ctx, result.SessionID)
	assert.Equal(t, chatmodel.KindDocument, sess.Kind)
	assert.Equal(t, "doc-1", sess.DocID)

	assert.Contains(t, notifier.sent, "document ingested")
}

func TestIngestText_EmptyInput(t *testing.T) {
	svc := New(extract.New(nil), &mockIndex{}, newTestSessions(t), nil, "")

	_, err := svc.IngestText(context.Background(), "   \n\t ", "empty.txt")
	assert.ErrorIs(t, err, extract.ErrNoReadableText)
}

func TestIngestText_StoreFailureAbortsIngestion(t *testing.T) {
	idx := &mockIndex{onStore: func([]docmodel.Chunk, string) (string, error) {
		return "", errors.New("index down")
	}}
	notifier := &mockNotifier{}
	svc := New(extract.New(nil), idx, newTestSessions(t), notifier, "ops@example.com")

	_, err := svc.IngestText(context.Background(), "some perfectly fine text", "a.txt")
	require.Error(t, err)
	assert.Empty(t, notifier.sent, "no notification for a failed ingestion")
}

func TestDelete_InvalidatesSummaryCache(t *testing.T) {
	idx := &mockIndex{}
	sessions := newTestSessions(t)
	svc := New(extract.New(nil), idx, sessions, nil, "")
	ctx := context.Background()

	sessions.StoreSummary(ctx, "doc-1", chatmodel.ChatResult{Response: "stale summary"})

	require.NoError(t, svc.Delete(ctx, "doc-1"))

	_, ok := sessions.CachedSummary(ctx, "doc-1")
	assert.False(t, ok, "deleted document's summary must not survive")
}

func TestDelete_PropagatesNotFound(t *testing.T) {
	sentinel := errors.New("not found")
	idx := &mockIndex{onDelete: func(string) error { return sentinel }}
	svc := New(extract.New(nil), idx, newTestSessions(t), nil, "")

	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel)
}
