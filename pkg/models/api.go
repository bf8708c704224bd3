package models

// QueryRequest is the transport-agnostic query contract. K and Mode fall back
// to configured defaults when omitted.
type QueryRequest struct {
	Query string `json:"query" validate:"required"`
	K     int    `json:"k,omitempty" validate:"gte=0"`
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=semantic lexical hybrid"`
}

// SourceRef is one cited source in a query response.
type SourceRef struct {
	Title        string  `json:"title"`
	Source       string  `json:"source"`
	Score        float64 `json:"score"`
	Offset       int     `json:"offset"`
	ChunkOrdinal int     `json:"chunk_ordinal"`
}

// QueryResponse is the transport-agnostic answer contract.
type QueryResponse struct {
	Answer     string      `json:"answer"`
	Sources    []SourceRef `json:"sources"`
	Prompt     string      `json:"prompt"`
	Confidence float64     `json:"confidence"`
}
