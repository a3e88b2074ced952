// Package localindex is the in-process vector index backend: exact
// inner-product search over an in-memory matrix, persisted in one
// transactional SQLite store.
package localindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/google/uuid"
)

type entry struct {
	chunkID    string
	docID      string
	filename   string
	chunkIndex int
	text       string
	vector     []float32
}

type Index struct {
	mu       sync.RWMutex
	db       *sql.DB
	embedder embed.Embedder
	entries  []entry
	docs     map[string]*docmodel.Document
	logger   *logx.Logger
}

// Open loads the persisted index from dataDir, rebuilding the
// in-memory search structures from the chunk table.
func Open(dataDir string, embedder embed.Embedder) (*Index, error) {
	db, err := openStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx := &Index{
		db:       db,
		embedder: embedder,
		docs:     make(map[string]*docmodel.Document),
		logger:   logx.New("localindex"),
	}
	if err := idx.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: loading index: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx.logger.Info("local index loaded", "documents", len(idx.docs), "chunks", len(idx.entries))
	return idx, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) load() error {
	rows, err := idx.db.Query(`
		SELECT id, doc_id, chunk_index, filename, content, embedding
		FROM chunks ORDER BY position`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e entry
		var blob []byte
		if err := rows.Scan(&e.chunkID, &e.docID, &e.chunkIndex, &e.filename, &e.text, &blob); err != nil {
			return err
		}
		e.vector = bytesToFloat32Slice(blob)
		idx.entries = append(idx.entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	docRows, err := idx.db.Query(`SELECT doc_id, filename, chunk_count FROM documents`)
	if err != nil {
		return err
	}
	defer docRows.Close()

	for docRows.Next() {
		var d docmodel.Document
		if err := docRows.Scan(&d.DocID, &d.Filename, &d.ChunkCount); err != nil {
			return err
		}
		idx.docs[d.DocID] = &d
	}
	if err := docRows.Err(); err != nil {
		return err
	}

	// chunk_ids in document order, derived from the chunk table
	for _, e := range idx.entries {
		if d, ok := idx.docs[e.docID]; ok {
			d.ChunkIDs = append(d.ChunkIDs, e.chunkID)
		}
	}
	return nil
}

func (idx *Index) Store(ctx context.Context, chunks []docmodel.Chunk, filename string) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("no chunks to store for %s", filename)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return "", err
	}
	embed.NormalizeAll(vectors)

	docID := uuid.New().String()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (doc_id, filename, chunk_count) VALUES (?, ?, ?)`,
		docID, filename, len(chunks)); err != nil {
		return "", fmt.Errorf("%w: saving document: %v", vectorindex.ErrIndexUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, doc_id, chunk_index, position, filename, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	defer stmt.Close()

	startPos := len(idx.entries)
	added := make([]entry, 0, len(chunks))
	chunkIDs := make([]string, 0, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, docID, c.ChunkIndex, startPos+i,
			filename, c.Text, float32SliceToBytes(vectors[i])); err != nil {
			return "", fmt.Errorf("%w: saving chunk: %v", vectorindex.ErrIndexUnavailable, err)
		}
		added = append(added, entry{
			chunkID:    id,
			docID:      docID,
			filename:   filename,
			chunkIndex: c.ChunkIndex,
			text:       c.Text,
			vector:     vectors[i],
		})
		chunkIDs = append(chunkIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: committing document: %v", vectorindex.ErrIndexUnavailable, err)
	}

	// memory structures only change after the store committed
	idx.entries = append(idx.entries, added...)
	idx.docs[docID] = &docmodel.Document{
		DocID:      docID,
		Filename:   filename,
		ChunkCount: len(chunks),
		ChunkIDs:   chunkIDs,
	}

	idx.logger.Info("stored document", "doc_id", docID, "filename", filename, "chunks", len(chunks))
	return docID, nil
}

func (idx *Index) Search(ctx context.Context, query string, k int) ([]docmodel.SearchHit, error) {
	return idx.SearchFiltered(ctx, query, k, nil)
}

// SearchFiltered scores every matching chunk, so filtered recall is
// exact rather than an over-fetch approximation.
func (idx *Index) SearchFiltered(ctx context.Context, query string, k int, filter map[string]string) ([]docmodel.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	empty := len(idx.entries) == 0
	idx.mu.RUnlock()
	if empty {
		return nil, nil
	}

	qVectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := embed.Normalize(qVectors[0])

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]docmodel.SearchHit, 0, k)
	for i := range idx.entries {
		e := &idx.entries[i]
		if !matches(e, filter) {
			continue
		}
		hits = append(hits, docmodel.SearchHit{
			Text:       e.text,
			ChunkIndex: e.chunkIndex,
			Filename:   e.filename,
			DocID:      e.docID,
			Score:      dot(q, e.vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func matches(e *entry, filter map[string]string) bool {
	for field, want := range filter {
		switch field {
		case "doc_id":
			if e.docID != want {
				return false
			}
		case "filename":
			if e.filename != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Delete removes the document and rewrites the remaining chunks'
// positions so the persisted order stays compact. Chunk identity is
// the opaque id, so other documents' chunk_ids remain valid.
func (idx *Index) Delete(ctx context.Context, docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docs[docID]; !ok {
		return vectorindex.ErrDocumentNotFound
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	// chunks are removed explicitly rather than through the cascade,
	// so the delete holds on any connection regardless of pragma state
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("%w: deleting chunks: %v", vectorindex.ErrIndexUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("%w: deleting document: %v", vectorindex.ErrIndexUnavailable, err)
	}

	// rebuild the surviving entries and compact their positions
	remaining := make([]entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		if e.docID != docID {
			remaining = append(remaining, e)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET position = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	defer stmt.Close()
	for pos, e := range remaining {
		if _, err := stmt.ExecContext(ctx, pos, e.chunkID); err != nil {
			return fmt.Errorf("%w: rewriting position: %v", vectorindex.ErrIndexUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx.entries = remaining
	delete(idx.docs, docID)

	idx.logger.Info("deleted document", "doc_id", docID, "remaining_chunks", len(remaining))
	return nil
}

func (idx *Index) List(ctx context.Context) ([]docmodel.Document, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docs := make([]docmodel.Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		docs = append(docs, *d)
	}
	return docs, nil
}

func (idx *Index) Stats(ctx context.Context) (docmodel.IndexStats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return docmodel.IndexStats{
		Backend:       "local",
		DocumentCount: len(idx.docs),
		ChunkCount:    len(idx.entries),
		Dimension:     idx.embedder.Dimension(),
	}, nil
}
