package models

// RawDocument is one document submitted for ingestion.
type RawDocument struct {
	Title    string                 `json:"title" validate:"required"`
	Source   string                 `json:"source"`
	Text     string                 `json:"text"`
	HTML     string                 `json:"html,omitempty"` // Alternative to Text; converted + cleaned before chunking
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RejectedDocument records why a submitted document was not ingested.
type RejectedDocument struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	Accepted     int                `json:"accepted"`
	Rejected     []RejectedDocument `json:"rejected"`
	Chunks       int                `json:"chunks"`
	IndexVersion uint64             `json:"index_version"`
}
