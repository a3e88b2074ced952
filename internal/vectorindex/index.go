package vectorindex

import (
	"context"
	"errors"

	"github.com/docchat/docchat/internal/domain/docmodel"
)

var (
	// ErrIndexUnavailable means the storage or search backend could not
	// be reached. Retryable.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDocumentNotFound is returned by Delete for an unknown doc_id.
	ErrDocumentNotFound = errors.New("document not found")
)

// Index is the single source of truth for chunk and document state.
// Exactly one backend is active per process; which one is an explicit
// startup decision surfaced through Stats.
type Index interface {
	// Store embeds all chunk texts, assigns a fresh doc_id and persists
	// vectors plus metadata. Atomic from the caller's perspective:
	// either the whole document becomes searchable or none of it does.
	Store(ctx context.Context, chunks []docmodel.Chunk, filename string) (string, error)

	// Search returns the top-k chunks across all documents, ordered by
	// descending similarity.
	Search(ctx context.Context, query string, k int) ([]docmodel.SearchHit, error)

	// SearchFiltered restricts results to chunks matching every
	// field/value pair. Recall among matching chunks is never worse
	// than an unfiltered top-k would achieve.
	SearchFiltered(ctx context.Context, query string, k int, filter map[string]string) ([]docmodel.SearchHit, error)

	// Delete removes a document and all its chunks; no orphaned vector
	// surfaces in later searches.
	Delete(ctx context.Context, docID string) error

	List(ctx context.Context) ([]docmodel.Document, error)

	Stats(ctx context.Context) (docmodel.IndexStats, error)
}
