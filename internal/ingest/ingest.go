// Package ingest drives the document pipeline: extract text, segment
// it into overlapping chunks, store them in the vector index and mint
// the document-scoped session handed back to the uploader.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/chatmodel"
	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/metrics"
	"github.com/docchat/docchat/internal/segment"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/pkg/logx"
)

// Notifier is the outbound side of the pipeline; notify.Queue is the
// production implementation.
type Notifier interface {
	Send(address, subject, body string)
}

type Result struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	SessionID  string `json:"session_id"`
}

type Service struct {
	extractor     *extract.Extractor
	index         vectorindex.Index
	sessions      *session.Store
	notifier      Notifier
	notifyAddress string
	logger        *logx.Logger
}

func New(extractor *extract.Extractor, index vectorindex.Index, sessions *session.Store, notifier Notifier, notifyAddress string) *Service {
	return &Service{
		extractor:     extractor,
		index:         index,
		sessions:      sessions,
		notifier:      notifier,
		notifyAddress: notifyAddress,
		logger:        logx.New("ingest"),
	}
}

// IngestFile extracts text from the uploaded file at path and runs the
// rest of the pipeline. Extraction failures abort ingestion and are
// surfaced to the uploader.
func (s *Service) IngestFile(ctx context.Context, path, filename string) (Result, error) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		return Result{}, err
	}
	return s.ingest(ctx, text, filename)
}

// IngestText skips extraction for pre-supplied plain text.
func (s *Service) IngestText(ctx context.Context, text, filename string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, extract.ErrNoReadableText
	}
	return s.ingest(ctx, text, filename)
}

func (s *Service) ingest(ctx context.Context, text, filename string) (Result, error) {
	log := s.logger.With("traceId", ctx.Value(config.TraceIDKey), "filename", filename)

	pieces := segment.Split(segment.Clean(text), config.ChunkSize, config.ChunkOverlap)
	if len(pieces) == 0 {
		return Result{}, extract.ErrNoReadableText
	}

	chunks := make([]docmodel.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = docmodel.Chunk{Text: piece, ChunkIndex: i}
	}

	docID, err := s.index.Store(ctx, chunks, filename)
	if err != nil {
		log.Error("storing document failed", "error", err)
		return Result{}, err
	}
	metrics.RecordIngestion(len(chunks))

	sess, err := s.sessions.CreateSession(ctx, chatmodel.KindDocument, docID, filename)
	if err != nil {
		// the document is stored and usable; only the convenience
		// session is missing
		log.Warn("could not create document session", "doc_id", docID, "error", err)
	}

	if s.notifier != nil && s.notifyAddress != "" {
		s.notifier.Send(s.notifyAddress, "document ingested",
			fmt.Sprintf("%s stored as %s (%d chunks)", filename, docID, len(chunks)))
	}

	log.Info("document ingested", "doc_id", docID, "chunks", len(chunks))
	return Result{
		DocID:      docID,
		Filename:   filename,
		ChunkCount: len(chunks),
		SessionID:  sess.SessionID,
	}, nil
}

// Delete removes a document from the index and drops its cached
// summary so a re-upload never serves stale content.
func (s *Service) Delete(ctx context.Context, docID string) error {
	if err := s.index.Delete(ctx, docID); err != nil {
		return err
	}
	s.sessions.InvalidateSummary(ctx, docID)

	if s.notifier != nil && s.notifyAddress != "" {
		s.notifier.Send(s.notifyAddress, "document deleted", docID)
	}
	return nil
}
