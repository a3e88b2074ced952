package localindex

import (
	"context"
	"errors"
	"hash/fnv"
	"testing"

	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps text deterministically onto a small vector so
// identical texts always land on identical embeddings.
type stubEmbedder struct {
	onEmbed func(texts []string) ([][]float32, error)
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.onEmbed != nil {
		return s.onEmbed(texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 4 }
func (s *stubEmbedder) Model() string  { return "stub" }

func vectorFor(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, 4)
	for i := range v {
		v[i] = float32((seed>>(i*8))&0xff) + 1
	}
	return v
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir(), &stubEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func storeChunks(t *testing.T, idx *Index, filename string, texts ...string) string {
	t.Helper()
	chunks := make([]docmodel.Chunk, len(texts))
	for i, txt := range texts {
		chunks[i] = docmodel.Chunk{Text: txt, ChunkIndex: i}
	}
	docID, err := idx.Store(context.Background(), chunks, filename)
	require.NoError(t, err)
	return docID
}

func TestStoreAndSearch(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docID := storeChunks(t, idx, "report.pdf", "alpha content", "beta content", "gamma content")

	hits, err := idx.Search(ctx, "alpha content", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// identical text embeds identically, so it must rank first
	assert.Equal(t, "alpha content", hits[0].Text)
	assert.Equal(t, docID, hits[0].DocID)
	assert.Equal(t, "report.pdf", hits[0].Filename)

	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score, "scores must be descending")
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := openTestIndex(t)

	hits, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFiltered_ScopeRespected(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docA := storeChunks(t, idx, "a.pdf", "shared topic one", "only in a")
	docB := storeChunks(t, idx, "b.pdf", "shared topic one", "only in b")

	hits, err := idx.SearchFiltered(ctx, "shared topic one", 10, map[string]string{"doc_id": docA})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, docA, h.DocID, "filtered search leaked a foreign chunk")
	}

	hits, err = idx.SearchFiltered(ctx, "shared topic one", 10, map[string]string{"doc_id": docB})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, docB, h.DocID)
	}
}

func TestDelete_RemovesAllTraces(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docA := storeChunks(t, idx, "a.pdf", "first doc text")
	docB := storeChunks(t, idx, "b.pdf", "second doc text")

	require.NoError(t, idx.Delete(ctx, docA))

	hits, err := idx.Search(ctx, "first doc text", 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, docA, h.DocID, "deleted document surfaced in search")
	}

	docs, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docB, docs[0].DocID)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.ChunkCount)
}

func TestDelete_HoldsAcrossConnectionsAndReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open(dir, &stubEmbedder{})
	require.NoError(t, err)

	docA := storeChunks(t, idx, "a.pdf", "doomed chunk")
	docB := storeChunks(t, idx, "b.pdf", "surviving chunk")

	// retire every pooled connection so the delete runs on a fresh one
	idx.db.SetMaxIdleConns(0)

	require.NoError(t, idx.Delete(ctx, docA))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, &stubEmbedder{})
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, "doomed chunk", 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, docA, h.DocID, "deleted document resurfaced after reopen")
	}

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.ChunkCount)

	docs, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docB, docs[0].DocID)
}

func TestDelete_UnknownDocument(t *testing.T) {
	idx := openTestIndex(t)

	err := idx.Delete(context.Background(), "no-such-doc")
	assert.ErrorIs(t, err, vectorindex.ErrDocumentNotFound)
}

func TestStore_EmbeddingFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	emb := &stubEmbedder{onEmbed: func([]string) ([][]float32, error) {
		return nil, errors.New("backend down")
	}}
	idx, err := Open(dir, emb)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Store(context.Background(), []docmodel.Chunk{{Text: "x"}}, "x.pdf")
	require.Error(t, err)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DocumentCount)
	assert.Zero(t, stats.ChunkCount)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open(dir, &stubEmbedder{})
	require.NoError(t, err)
	docID := storeChunks(t, idx, "keep.pdf", "persisted chunk one", "persisted chunk two")
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, &stubEmbedder{})
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docID, docs[0].DocID)
	assert.Equal(t, 2, docs[0].ChunkCount)
	assert.Len(t, docs[0].ChunkIDs, 2)

	hits, err := reopened.Search(ctx, "persisted chunk one", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "persisted chunk one", hits[0].Text)
}

func TestDocumentInvariant_ChunkIDsMatchCount(t *testing.T) {
	idx := openTestIndex(t)

	storeChunks(t, idx, "inv.pdf", "one", "two", "three")

	docs, err := idx.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, docs[0].ChunkCount, len(docs[0].ChunkIDs))
}
