// Package responder orchestrates the query path: resolve the session's
// scope, consult the cache, retrieve context, build a grounded prompt,
// invoke the model and persist the exchange. Every request produces a
// well-formed result; failures are classified into user-facing messages
// rather than propagated.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/domain/chatmodel"
	"github.com/docchat/docchat/internal/domain/docmodel"
	"github.com/docchat/docchat/internal/llm"
	"github.com/docchat/docchat/internal/metrics"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/pkg/logx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgNoDocuments    = "No documents available. Upload a document first."
	msgEmptyResponse  = "I apologize, but I couldn't generate a response. This might be due to content safety filters or technical issues."
	msgBadCredentials = "Invalid API credentials. Please check the server configuration."
	msgQuotaExceeded  = "API quota exceeded. Please try again later."
	msgContentBlocked = "Content was blocked by safety filters. Please rephrase your question."
	msgGenericFailure = "Error processing your question. Please try again."
	msgEmptySummary   = "I couldn't generate a summary."

	systemInstruction = "You are a helpful AI assistant answering strictly from the provided context. " +
		"If the answer isn't in the context, say so clearly. Be concise and cite relevant parts."

	summaryQuery = "Summarize this document"
)

type Responder struct {
	index    vectorindex.Index
	sessions *session.Store
	model    llm.Provider
	logger   *logx.Logger
}

func New(index vectorindex.Index, sessions *session.Store, model llm.Provider) *Responder {
	return &Responder{
		index:    index,
		sessions: sessions,
		model:    model,
		logger:   logx.New("responder"),
	}
}

// Answer runs the full query pipeline for one message. It never
// returns an error: failures become explanatory response text with
// empty sources so the caller's contract holds.
func (r *Responder) Answer(ctx context.Context, message, sessionID string) chatmodel.ChatResult {
	log := r.logger.With("traceId", ctx.Value(config.TraceIDKey), "session_id", sessionID)

	sess := r.sessions.Resolve(ctx, sessionID)
	docID := sess.DocID

	// A cache hit still lands in conversation history, so the visible
	// transcript never diverges from what was answered.
	if cached, ok := r.sessions.CachedAnswer(ctx, message, docID); ok {
		log.Debug("cache hit", "doc_id", orGeneral(docID))
		r.appendRecord(ctx, sessionID, message, cached)
		return cached
	}

	searchStart := time.Now()
	hits, err := r.retrieve(ctx, message, docID, config.ChatTopK)
	metrics.ObserveDependency("vector_search", time.Since(searchStart))
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return chatmodel.ChatResult{Response: classify(err), Sources: []chatmodel.Source{}}
	}

	if len(hits) == 0 {
		log.Warn("no relevant chunks", "doc_id", orGeneral(docID))
		return chatmodel.ChatResult{Response: noResultsMessage(docID), Sources: []chatmodel.Source{}}
	}

	prompt, sources := groundedPrompt(message, hits)

	genStart := time.Now()
	text, err := r.model.Generate(ctx, prompt, llm.Options{
		SystemInstruction: systemInstruction,
		MaxTokens:         int(config.MaxOutputTokens),
		Temperature:       config.ModelTemperature,
	})
	metrics.ObserveDependency("llm_generate", time.Since(genStart))
	if err != nil {
		log.Error("generation failed", "error", err)
		return chatmodel.ChatResult{Response: classify(err), Sources: []chatmodel.Source{}}
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		answer = msgEmptyResponse
	}

	result := chatmodel.ChatResult{Response: answer, Sources: sources}
	r.sessions.StoreAnswer(ctx, message, docID, result)
	r.appendRecord(ctx, sessionID, message, result)

	log.Info("answered", "doc_id", orGeneral(docID), "sources", len(sources))
	return result
}

// Summarize produces a whole-document summary from a wider retrieval
// slice, cached per document.
func (r *Responder) Summarize(ctx context.Context, docID string) chatmodel.ChatResult {
	log := r.logger.With("traceId", ctx.Value(config.TraceIDKey), "doc_id", docID)

	if cached, ok := r.sessions.CachedSummary(ctx, docID); ok {
		log.Debug("summary cache hit")
		return cached
	}

	hits, err := r.index.SearchFiltered(ctx, summaryQuery, config.SummaryTopK,
		map[string]string{"doc_id": docID})
	if err != nil {
		log.Error("summary retrieval failed", "error", err)
		return chatmodel.ChatResult{Response: classify(err), Sources: []chatmodel.Source{}}
	}
	if len(hits) == 0 {
		return chatmodel.ChatResult{
			Response: fmt.Sprintf("No content found for document %s.", docID),
			Sources:  []chatmodel.Source{},
		}
	}

	prompt, sources := summaryPrompt(hits)

	text, err := r.model.Generate(ctx, prompt, llm.Options{
		MaxTokens:   int(config.SummaryMaxTokens),
		Temperature: config.SummaryTemperature,
	})
	if err != nil {
		log.Error("summary generation failed", "error", err)
		return chatmodel.ChatResult{Response: classify(err), Sources: []chatmodel.Source{}}
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		summary = msgEmptySummary
	}

	result := chatmodel.ChatResult{Response: summary, Sources: sources}
	r.sessions.StoreSummary(ctx, docID, result)

	log.Info("summarized", "sources", len(sources))
	return result
}

func (r *Responder) retrieve(ctx context.Context, message, docID string, k int) ([]docmodel.SearchHit, error) {
	if docID != "" {
		return r.index.SearchFiltered(ctx, message, k, map[string]string{"doc_id": docID})
	}
	return r.index.Search(ctx, message, k)
}

func (r *Responder) appendRecord(ctx context.Context, sessionID, question string, result chatmodel.ChatResult) {
	filenames := make([]string, 0, len(result.Sources))
	for _, src := range result.Sources {
		filenames = append(filenames, src.Filename)
	}

	rec := chatmodel.ConversationRecord{
		Question:      question,
		Answer:        result.Response,
		Sources:       filenames,
		ContextChunks: len(result.Sources),
		Model:         r.model.Model(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.sessions.AppendMessage(ctx, sessionID, rec); err != nil {
		r.logger.Warn("could not append conversation record", "session_id", sessionID, "error", err)
	}
}

// groundedPrompt labels each retrieved chunk positionally and embeds
// the question, collecting source attributions in the same order.
func groundedPrompt(question string, hits []docmodel.SearchHit) (string, []chatmodel.Source) {
	pieces := make([]string, 0, len(hits))
	sources := make([]chatmodel.Source, 0, len(hits))
	for i, hit := range hits {
		pieces = append(pieces, fmt.Sprintf("Document %d: %s", i+1, hit.Text))
		sources = append(sources, chatmodel.Source{
			Filename:   hit.Filename,
			ChunkIndex: hit.ChunkIndex,
			Score:      hit.Score,
		})
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer from the context above:",
		strings.Join(pieces, "\n\n"), question)
	return prompt, sources
}

func summaryPrompt(hits []docmodel.SearchHit) (string, []chatmodel.Source) {
	pieces := make([]string, 0, len(hits))
	sources := make([]chatmodel.Source, 0, len(hits))
	for i, hit := range hits {
		pieces = append(pieces, fmt.Sprintf("Section %d: %s", i+1, hit.Text))
		sources = append(sources, chatmodel.Source{
			Filename:   hit.Filename,
			ChunkIndex: hit.ChunkIndex,
			Score:      hit.Score,
		})
	}

	prompt := fmt.Sprintf(`You are an expert technical writer. Write a comprehensive and detailed summary of the following document. Your summary should include:

- High-level overview of the document
- Key objectives and goals
- Important details and insights
- Any challenges, limitations, or assumptions

Make the summary structured, clear, and detailed.

Context:
%s

Now write the detailed summary:`, strings.Join(pieces, "\n\n"))
	return prompt, sources
}

func noResultsMessage(docID string) string {
	if docID != "" {
		return fmt.Sprintf("No relevant content found in the document (doc_id: %s). "+
			"The document may be empty or the question didn't match any content.", docID)
	}
	return msgNoDocuments
}

// classify maps a pipeline failure onto one of the fixed user-facing
// messages. Vendor errors arrive either as gRPC statuses or as opaque
// strings, so both are inspected.
func classify(err error) string {
	if errors.Is(err, llm.ErrContentBlocked) {
		return msgContentBlocked
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return msgBadCredentials
		case codes.ResourceExhausted:
			return msgQuotaExceeded
		}
	}

	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "API KEY"):
		return msgBadCredentials
	case strings.Contains(msg, "QUOTA") || strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "RATE LIMIT"):
		return msgQuotaExceeded
	case strings.Contains(msg, "SAFETY"):
		return msgContentBlocked
	}
	return msgGenericFailure
}

func orGeneral(docID string) string {
	if docID == "" {
		return "general"
	}
	return docID
}
