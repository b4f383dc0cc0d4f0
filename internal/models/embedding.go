package models

// TextUnit is raw extracted text scoped to one page, or to the whole
// document for formats without pagination. PageNumber 0 means no page.
type TextUnit struct {
	Text       string
	PageNumber int
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	PageNumber int       `json:"page_number,omitempty"`
	Embedding  []float32 `json:"-"`
}

// HasEmbedding reports whether the embedder already processed the chunk.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// RetrievedChunk is a chunk ranked against a query. Rank is 1-based.
type RetrievedChunk struct {
	Chunk      Chunk
	Similarity float64
	Rank       int
}

// Source is one cited passage in a QueryResult.
type Source struct {
	SourceNumber int     `json:"source_number"`
	DocumentID   string  `json:"document_id"`
	PageNumber   int     `json:"page_number,omitempty"`
	TextSnippet  string  `json:"text_snippet"`
	Similarity   float64 `json:"similarity"`
}

// QueryResult is the answer to a single RAG query.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Query   string   `json:"query"`
}
