package models

import "time"

// Citation links one answer claim back to a chunk that was actually retrieved
// and used. Citations pointing outside the retrieval set are never emitted.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Offset     int     `json:"offset"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
}

// AnswerRecord is the externally visible unit of work for one query.
type AnswerRecord struct {
	ID                string        `json:"id" badgerhold:"key"`
	Query             string        `json:"query"`
	Answer            string        `json:"answer"`
	Citations         []Citation    `json:"citations"`
	Prompt            string        `json:"prompt"`
	Confidence        float64       `json:"confidence"` // In [0,1]; 0 when retrieval was empty
	Supported         bool          `json:"supported"`
	SupportedFraction float64       `json:"supported_fraction"` // Fraction of answer spans grounded in retrieved chunks
	Mode              RetrievalMode `json:"mode"`
	K                 int           `json:"k"`
	IndexVersion      uint64        `json:"index_version"`
	CreatedAt         time.Time     `json:"created_at"`
}

// CachedAnswer is the persisted cache entry for one (query, k, mode,
// index-version) key. A reindex changes the version component of the key, so
// stale entries become unreachable without explicit eviction.
type CachedAnswer struct {
	Key          string       `json:"key" badgerhold:"key"`
	IndexVersion uint64       `json:"index_version" badgerholdIndex:"IndexVersion"`
	Record       AnswerRecord `json:"record"`
	CreatedAt    time.Time    `json:"created_at"`
}
