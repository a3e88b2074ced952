// Package api defines the request and response payloads of the HTTP
// surface.
package api

import (
	"github.com/docchat/docchat/internal/domain/chatmodel"
)

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse mirrors chatmodel.ChatResult on the wire.
type ChatResponse struct {
	Response string             `json:"response"`
	Sources  []chatmodel.Source `json:"sources"`
}

type UploadTextRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

type UploadResponse struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	SessionID  string `json:"session_id"`
}

type DocumentInfo struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

type DocumentListResponse struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	DocID   string `json:"doc_id"`
}

type HistoryResponse struct {
	SessionID string                         `json:"session_id"`
	History   []chatmodel.ConversationRecord `json:"history"`
}

type SummaryResponse struct {
	Summary string             `json:"summary"`
	Sources []chatmodel.Source `json:"sources"`
}

type StatsResponse struct {
	Backend       string `json:"backend"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	Dimension     int    `json:"embedding_dimension"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
