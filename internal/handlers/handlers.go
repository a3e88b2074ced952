// Package handlers maps the HTTP surface onto the ingest, responder
// and index services.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/docchat/docchat/internal/api"
	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/ingest"
	"github.com/docchat/docchat/internal/responder"
	"github.com/docchat/docchat/internal/session"
	"github.com/docchat/docchat/internal/vectorindex"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultSessionID = "default"

type Handler struct {
	ingest    *ingest.Service
	responder *responder.Responder
	sessions  *session.Store
	index     vectorindex.Index
	logger    *logx.Logger
}

func New(ingestSvc *ingest.Service, resp *responder.Responder, sessions *session.Store, index vectorindex.Index) *Handler {
	return &Handler{
		ingest:    ingestSvc,
		responder: resp,
		sessions:  sessions,
		index:     index,
		logger:    logx.New("handlers"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Upload ingests a multipart file. The payload lands in a temp file
// scoped to this request; unsupported extensions are rejected before
// extraction.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.MaxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if extract.DocTypeOf(filename) == extract.TypeUnknown {
		writeError(w, http.StatusBadRequest, "unsupported document type")
		return
	}

	tmpDir, err := os.MkdirTemp("", "docchat-upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, uuid.New().String()+filepath.Ext(filename))
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	dst.Close()

	result, err := h.ingest.IngestFile(r.Context(), tmpPath, filename)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UploadResponse(result))
}

// UploadText ingests raw text without a file roundtrip.
func (h *Handler) UploadText(w http.ResponseWriter, r *http.Request) {
	var req api.UploadTextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		req.Filename = "untitled.txt"
	}

	result, err := h.ingest.IngestText(r.Context(), req.Text, req.Filename)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UploadResponse(result))
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.index.List(r.Context())
	if err != nil {
		h.logger.Error("listing documents failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}

	infos := make([]api.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, api.DocumentInfo{
			DocID:      d.DocID,
			Filename:   d.Filename,
			ChunkCount: d.ChunkCount,
		})
	}
	writeJSON(w, http.StatusOK, api.DocumentListResponse{Documents: infos, Count: len(infos)})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")

	if err := h.ingest.Delete(r.Context(), docID); err != nil {
		if errors.Is(err, vectorindex.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("delete failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Success: true, DocID: docID})
}

// Chat answers one message. The responder never fails; whatever it
// returns is the 200 response body.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := decodeBody(r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	result := h.responder.Answer(r.Context(), req.Message, req.SessionID)
	writeJSON(w, http.StatusOK, api.ChatResponse{Response: result.Response, Sources: result.Sources})
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	history, err := h.sessions.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("history read failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{SessionID: sessionID, History: history})
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if err := h.sessions.ClearHistory(r.Context(), sessionID); err != nil {
		h.logger.Error("history clear failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "session_id": sessionID})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")

	result := h.responder.Summarize(r.Context(), docID)
	writeJSON(w, http.StatusOK, api.SummaryResponse{Summary: result.Response, Sources: result.Sources})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats read failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, api.StatsResponse{
		Backend:       stats.Backend,
		DocumentCount: stats.DocumentCount,
		ChunkCount:    stats.ChunkCount,
		Dimension:     stats.Dimension,
	})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, extract.ErrNoReadableText) {
		writeError(w, http.StatusUnprocessableEntity, "document has no readable text")
		return
	}
	h.logger.With("traceId", r.Context().Value(config.TraceIDKey)).
		Error("ingestion failed", "error", err)
	writeError(w, http.StatusServiceUnavailable, "could not ingest document")
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logx.New("handlers").Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, api.ErrorResponse{Error: message, Code: code})
}
