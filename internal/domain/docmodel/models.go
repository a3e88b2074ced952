package docmodel

// Chunk is a bounded slice of a document's text, the unit of embedding
// and retrieval. Owned by the vector index once stored.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	ChunkIndex int       `json:"chunk_index"`
	DocID      string    `json:"doc_id"`
	Filename   string    `json:"filename"`
	Embedding  []float32 `json:"-"`
}

type Document struct {
	DocID      string   `json:"doc_id"`
	Filename   string   `json:"filename"`
	ChunkCount int      `json:"chunk_count"`
	ChunkIDs   []string `json:"chunk_ids,omitempty"`
}

// SearchHit is a chunk returned from a similarity query together with
// its score (cosine similarity, vectors are normalized before storage).
type SearchHit struct {
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	DocID      string  `json:"doc_id"`
	Score      float32 `json:"similarity_score"`
}

type IndexStats struct {
	Backend       string `json:"backend"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	Dimension     int    `json:"embedding_dimension"`
}
