package index

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// MetricCosine and MetricDot name the supported vector similarity metrics.
const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
)

// entry is one indexed chunk, denormalized with the document metadata the
// retriever hands downstream. Both search legs score over the same entries
// slice, which is what makes vector/lexical membership identical.
type entry struct {
	ChunkID     string
	DocumentID  string
	Title       string
	Source      string
	Text        string
	StartOffset int
	Ordinal     int
	Vector      []float32
	VectorNorm  float64
	TermFreqs   map[string]int
	Length      int // token count, for BM25 length normalization
}

// Snapshot is an immutable point-in-time index over one chunk corpus. Safe
// for concurrent searches without locking; rebuilds produce a new Snapshot.
type Snapshot struct {
	Version uint64
	Model   string // embedding model the vectors came from
	Dim     int
	Metric  string

	entries   []entry
	docFreqs  map[string]int
	avgLength float64
}

// Size returns the number of indexed chunks.
func (s *Snapshot) Size() int {
	return len(s.entries)
}

// SearchVector returns the k entries most similar to the query vector,
// scores non-increasing. Ties break toward the lower chunk ordinal.
func (s *Snapshot) SearchVector(query []float32, k int) ([]models.RetrievedChunk, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}
	if len(query) != s.Dim {
		return nil, common.NewValidationError("query",
			"embedding dimension does not match the index")
	}

	scored := make([]scoredEntry, 0, len(s.entries))
	for i := range s.entries {
		score := s.similarity(&s.entries[i], query)
		scored = append(scored, scoredEntry{idx: i, score: score})
	}
	return s.top(scored, k), nil
}

// SearchLexical returns the k best BM25 matches for the query terms,
// scores non-increasing. Entries sharing no term with the query never rank.
func (s *Snapshot) SearchLexical(query string, k int) ([]models.RetrievedChunk, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	n := float64(len(s.entries))
	scored := make([]scoredEntry, 0, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		var score float64
		for _, term := range terms {
			tf := e.TermFreqs[term]
			if tf == 0 {
				continue
			}
			df := float64(s.docFreqs[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(e.Length)/s.avgLength))
			score += idf * norm
		}
		if score > 0 {
			scored = append(scored, scoredEntry{idx: i, score: score})
		}
	}
	return s.top(scored, k), nil
}

type scoredEntry struct {
	idx   int
	score float64
}

func (s *Snapshot) top(scored []scoredEntry, k int) []models.RetrievedChunk {
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		ea, eb := &s.entries[scored[a].idx], &s.entries[scored[b].idx]
		if ea.Ordinal != eb.Ordinal {
			return ea.Ordinal < eb.Ordinal
		}
		return ea.ChunkID < eb.ChunkID
	})

	if k > len(scored) {
		k = len(scored)
	}
	hits := make([]models.RetrievedChunk, 0, k)
	for rank := 0; rank < k; rank++ {
		e := &s.entries[scored[rank].idx]
		hits = append(hits, models.RetrievedChunk{
			ChunkID:     e.ChunkID,
			DocumentID:  e.DocumentID,
			Title:       e.Title,
			Source:      e.Source,
			Text:        e.Text,
			StartOffset: e.StartOffset,
			Ordinal:     e.Ordinal,
			Score:       scored[rank].score,
			Rank:        rank,
		})
	}
	return hits
}

func (s *Snapshot) similarity(e *entry, query []float32) float64 {
	var dot float64
	for i, q := range query {
		dot += float64(q) * float64(e.Vector[i])
	}
	if s.Metric == MetricDot {
		return dot
	}

	var qNorm float64
	for _, q := range query {
		qNorm += float64(q) * float64(q)
	}
	denom := math.Sqrt(qNorm) * e.VectorNorm
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func validateK(k int) error {
	if k <= 0 {
		return common.NewValidationError("k", "must be positive")
	}
	return nil
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Tokenize lowercases text and splits it into alphanumeric terms, dropping
// single-character fragments. The same tokenizer runs at index and query
// time so term matching stays symmetric.
func Tokenize(text string) []string {
	raw := tokenRegex.FindAllString(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) >= 2 {
			terms = append(terms, t)
		}
	}
	return terms
}
