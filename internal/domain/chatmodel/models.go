package chatmodel

// SessionKind tells whether a session is bound to one document or
// searches across everything.
type SessionKind string

const (
	KindDocument SessionKind = "document"
	KindGeneral  SessionKind = "general"
)

type Session struct {
	SessionID string      `json:"session_id"`
	DocID     string      `json:"doc_id,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	CreatedAt string      `json:"created_at"`
	Kind      SessionKind `json:"type"`
}

type Source struct {
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"similarity_score"`
}

// ChatResult is the full response payload for one answered question,
// also the value cached under the query fingerprint.
type ChatResult struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// ConversationRecord is one question/answer exchange appended to a
// session's bounded history log.
type ConversationRecord struct {
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	ContextChunks int      `json:"context_chunks"`
	Model         string   `json:"model"`
	Timestamp     string   `json:"timestamp"`
}
