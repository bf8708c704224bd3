package models

import "time"

// Document is an immutable source record. Edits create new documents (and
// therefore new chunks); the raw text is never mutated in place.
type Document struct {
	ID         string                 `json:"id" badgerhold:"key"`
	Title      string                 `json:"title"`
	Source     string                 `json:"source"` // Source URI
	Text       string                 `json:"text"`   // Raw text as ingested
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	IngestedAt time.Time              `json:"ingested_at"`
}

// Chunk is a bounded, offset-tracked segment of one document's
// boilerplate-stripped text. Text is a verbatim substring of that stripped
// text; offsets are byte positions into it and always land on rune
// boundaries, so every chunk is valid UTF-8.
type Chunk struct {
	ID          string    `json:"id" badgerhold:"key"`
	DocumentID  string    `json:"document_id" badgerholdIndex:"DocumentID"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Ordinal     int       `json:"ordinal"` // Position within the document, 0-based
	Embedding   []float32 `json:"embedding,omitempty"`
	Model       string    `json:"model,omitempty"` // Embedding model that produced the vector
}
