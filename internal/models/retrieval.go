package models

// RetrievalMode selects which relevance signals the retriever combines.
type RetrievalMode string

const (
	ModeSemantic RetrievalMode = "semantic"
	ModeLexical  RetrievalMode = "lexical"
	ModeHybrid   RetrievalMode = "hybrid"
)

// ValidMode reports whether m names a known retrieval mode.
func ValidMode(m RetrievalMode) bool {
	switch m {
	case ModeSemantic, ModeLexical, ModeHybrid:
		return true
	}
	return false
}

// RetrievedChunk is one ranked retrieval hit, hydrated with the chunk text
// and document metadata the downstream stages need. Transient, not persisted.
type RetrievedChunk struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Title       string  `json:"title"`
	Source      string  `json:"source"`
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	Ordinal     int     `json:"ordinal"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"` // 0-based, scores non-increasing by rank
}

// RetrievalResult is the ordered hit list for one query.
type RetrievalResult struct {
	Query        string           `json:"query"`
	Mode         RetrievalMode    `json:"mode"`
	IndexVersion uint64           `json:"index_version"`
	Chunks       []RetrievedChunk `json:"chunks"`
}

// Empty reports whether no chunk cleared the minimum-score floor.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// TopScore returns the highest score in the result, or 0 when empty.
func (r *RetrievalResult) TopScore() float64 {
	if r.Empty() {
		return 0
	}
	return r.Chunks[0].Score
}

// Contains reports whether the result includes the given chunk ID.
func (r *RetrievalResult) Contains(chunkID string) bool {
	if r == nil {
		return false
	}
	for i := range r.Chunks {
		if r.Chunks[i].ChunkID == chunkID {
			return true
		}
	}
	return false
}
