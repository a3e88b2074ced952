// Package qdrantindex is the remote vector index backend, backed by a
// Qdrant collection over gRPC plus a small local document registry.
package qdrantindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/embed"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

type Index struct {
	client     *qdrant.Client
	registry   *registry
	embedder   embed.Embedder
	collection string
	logger     *logx.Logger
}

type Options struct {
	Host       string
	Port       int
	UseTLS     bool
	Collection string
	DataDir    string
}

// Open connects to Qdrant, ensures the collection exists and opens the
// document registry. Connection failure is an ErrIndexUnavailable: the
// caller decides whether to fall back to the local backend.
func Open(ctx context.Context, embedder embed.Embedder, opts Options) (*Index, error) {
	if opts.Collection == "" {
		opts.Collection = config.QdrantCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}

	if err := ensureCollection(ctx, client, opts.Collection, uint64(embedder.Dimension())); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ensuring collection %q: %v", vectorindex.ErrIndexUnavailable, opts.Collection, err)
	}

	reg, err := openRegistry(opts.DataDir)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx := &Index{
		client:     client,
		registry:   reg,
		embedder:   embedder,
		collection: opts.Collection,
		logger:     logx.New("qdrantindex"),
	}
	idx.logger.Info("qdrant index ready", "host", opts.Host, "collection", opts.Collection)
	return idx, nil
}

func (idx *Index) Close() error {
	regErr := idx.registry.close()
	if err := idx.client.Close(); err != nil {
		return err
	}
	return regErr
}

func ensureCollection(ctx context.Context, client *qdrant.Client, name string, dimension uint64) error {
	if name == "" {
		return errors.New("empty collection name")
	}

	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
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

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		chunkID := c.ID
		if chunkID == "" {
			chunkID = uuid.New().String()
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(chunkID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text":        c.Text,
				"chunk_index": c.ChunkIndex,
				"doc_id":      docID,
				"filename":    filename,
				"chunk_id":    chunkID,
			}),
		}
	}

	// Wait so the upsert is durable before the registry row exists;
	// the registry never names a document Qdrant does not hold.
	if _, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	}); err != nil {
		return "", fmt.Errorf("%w: upsert: %v", vectorindex.ErrIndexUnavailable, err)
	}

	doc := docmodel.Document{DocID: docID, Filename: filename, ChunkCount: len(chunks)}
	if err := idx.registry.add(ctx, doc); err != nil {
		return "", fmt.Errorf("%w: recording document: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx.logger.Info("stored document", "doc_id", docID, "filename", filename, "chunks", len(chunks))
	return docID, nil
}

func (idx *Index) Search(ctx context.Context, query string, k int) ([]docmodel.SearchHit, error) {
	return idx.SearchFiltered(ctx, query, k, nil)
}

// SearchFiltered pushes the filter down to Qdrant as payload match
// conditions, so the top-k is computed among matching points only.
func (idx *Index) SearchFiltered(ctx context.Context, query string, k int, filter map[string]string) ([]docmodel.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	qVectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := embed.Normalize(qVectors[0])

	req := &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(q...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			conditions = append(conditions, qdrant.NewMatch(field, value))
		}
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	result, err := idx.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", vectorindex.ErrIndexUnavailable, err)
	}

	hits := make([]docmodel.SearchHit, 0, len(result))
	for _, point := range result {
		hits = append(hits, docmodel.SearchHit{
			Text:       point.Payload["text"].GetStringValue(),
			ChunkIndex: int(point.Payload["chunk_index"].GetIntegerValue()),
			Filename:   point.Payload["filename"].GetStringValue(),
			DocID:      point.Payload["doc_id"].GetStringValue(),
			Score:      point.Score,
		})
	}
	return hits, nil
}

func (idx *Index) Delete(ctx context.Context, docID string) error {
	known, err := idx.registry.exists(ctx, docID)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	if !known {
		return vectorindex.ErrDocumentNotFound
	}

	if _, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
		}),
		Wait: qdrant.PtrOf(true),
	}); err != nil {
		return fmt.Errorf("%w: deleting points: %v", vectorindex.ErrIndexUnavailable, err)
	}

	if _, err := idx.registry.remove(ctx, docID); err != nil {
		return fmt.Errorf("%w: removing registry row: %v", vectorindex.ErrIndexUnavailable, err)
	}

	idx.logger.Info("deleted document", "doc_id", docID)
	return nil
}

func (idx *Index) List(ctx context.Context) ([]docmodel.Document, error) {
	docs, err := idx.registry.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	return docs, nil
}

func (idx *Index) Stats(ctx context.Context) (docmodel.IndexStats, error) {
	docs, chunks, err := idx.registry.counts(ctx)
	if err != nil {
		return docmodel.IndexStats{}, fmt.Errorf("%w: %v", vectorindex.ErrIndexUnavailable, err)
	}
	return docmodel.IndexStats{
		Backend:       "qdrant",
		DocumentCount: docs,
		ChunkCount:    chunks,
		Dimension:     idx.embedder.Dimension(),
	}, nil
}
