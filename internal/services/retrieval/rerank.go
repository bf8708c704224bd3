package retrieval

import (
	"context"
	"sort"

	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/index"
)

// Reranker reorders retrieval candidates with a deeper relevance signal
// than the first-pass index scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []models.RetrievedChunk) ([]models.RetrievedChunk, error)
}

// NoopReranker keeps the first-pass ranking.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, hits []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	return hits, nil
}

// OverlapReranker reorders candidates by the fraction of query terms each
// chunk contains, falling back to the first-pass score as a tie-break. Cheap
// and local; a cross-encoder could slot in behind the same interface.
type OverlapReranker struct{}

// NewOverlapReranker creates the term-overlap reranker.
func NewOverlapReranker() *OverlapReranker {
	return &OverlapReranker{}
}

func (r *OverlapReranker) Rerank(ctx context.Context, query string, hits []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := index.Tokenize(query)
	if len(queryTerms) == 0 {
		return hits, nil
	}
	want := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		want[t] = true
	}

	overlap := make([]float64, len(hits))
	for i, h := range hits {
		seen := make(map[string]bool)
		for _, t := range index.Tokenize(h.Text) {
			if want[t] {
				seen[t] = true
			}
		}
		overlap[i] = float64(len(seen)) / float64(len(want))
	}

	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if overlap[order[a]] != overlap[order[b]] {
			return overlap[order[a]] > overlap[order[b]]
		}
		return hits[order[a]].Score > hits[order[b]].Score
	})

	out := make([]models.RetrievedChunk, len(hits))
	for rank, idx := range order {
		out[rank] = hits[idx]
		out[rank].Rank = rank
	}
	return out, nil
}
