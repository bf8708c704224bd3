package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/index"
)

// Retriever runs the configured retrieval mode against the current index
// snapshot. In hybrid mode the semantic and lexical legs run concurrently
// against the same snapshot, then merge on normalized scores.
type Retriever struct {
	embedder interfaces.EmbeddingService
	idx      *index.Index
	config   *common.RetrievalConfig
	maxK     int
	reranker Reranker
	logger   arbor.ILogger
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(
	embedder interfaces.EmbeddingService,
	idx *index.Index,
	retrievalConfig *common.RetrievalConfig,
	indexConfig *common.IndexConfig,
	logger arbor.ILogger,
) (*Retriever, error) {
	if retrievalConfig.DefaultK <= 0 {
		return nil, common.NewConfigError("retrieval.default_k", "must be positive")
	}
	if retrievalConfig.DefaultK > indexConfig.MaxK {
		return nil, common.NewConfigError("retrieval.default_k",
			fmt.Sprintf("exceeds index.max_k (%d)", indexConfig.MaxK))
	}
	if !models.ValidMode(models.RetrievalMode(retrievalConfig.DefaultMode)) {
		return nil, common.NewConfigError("retrieval.default_mode",
			fmt.Sprintf("unknown mode %q", retrievalConfig.DefaultMode))
	}

	r := &Retriever{
		embedder: embedder,
		idx:      idx,
		config:   retrievalConfig,
		maxK:     indexConfig.MaxK,
		reranker: NoopReranker{},
		logger:   logger,
	}
	if retrievalConfig.Rerank {
		r.reranker = NewOverlapReranker()
	}
	return r, nil
}

// Retrieve returns the top-k chunks for the query in the given mode. A zero
// k or empty mode falls back to the configured defaults. Results whose score
// falls below the minimum floor are dropped; an empty result is valid and
// means the corpus has nothing relevant.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, mode models.RetrievalMode) (*models.RetrievalResult, error) {
	if query == "" {
		return nil, common.NewValidationError("query", "cannot be empty")
	}
	if k == 0 {
		k = r.config.DefaultK
	}
	if k < 0 {
		return nil, common.NewValidationError("k", "must be positive")
	}
	if k > r.maxK {
		return nil, common.NewValidationError("k",
			fmt.Sprintf("exceeds the maximum of %d", r.maxK))
	}
	if mode == "" {
		mode = models.RetrievalMode(r.config.DefaultMode)
	}
	if !models.ValidMode(mode) {
		return nil, common.NewValidationError("mode",
			"must be one of: semantic, lexical, hybrid")
	}

	snap, err := r.idx.Current()
	if err != nil {
		return nil, err
	}

	// Over-fetch when a reranking stage will reorder the candidates.
	fetchK := k
	if r.config.Rerank && r.config.RerankDepth > fetchK {
		fetchK = r.config.RerankDepth
		if fetchK > r.maxK {
			fetchK = r.maxK
		}
	}

	var hits []models.RetrievedChunk
	switch mode {
	case models.ModeSemantic:
		hits, err = r.semantic(ctx, snap, query, fetchK)
	case models.ModeLexical:
		hits, err = snap.SearchLexical(query, fetchK)
	case models.ModeHybrid:
		hits, err = r.hybrid(ctx, snap, query, fetchK)
	}
	if err != nil {
		return nil, err
	}

	hits = r.rerank(ctx, query, hits)
	hits = applyFloor(hits, r.config.MinScore)
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i
	}

	r.logger.Debug().
		Str("mode", string(mode)).
		Int("k", k).
		Int("hits", len(hits)).
		Int64("index_version", int64(snap.Version)).
		Msg("Retrieval complete")

	return &models.RetrievalResult{
		Query:        query,
		Mode:         mode,
		IndexVersion: snap.Version,
		Chunks:       hits,
	}, nil
}

func (r *Retriever) semantic(ctx context.Context, snap *index.Snapshot, query string, k int) ([]models.RetrievedChunk, error) {
	// Query vectors must come from the exact model that embedded the corpus,
	// not merely one with a matching dimension.
	if model := r.embedder.ModelName(); model != snap.Model {
		return nil, common.NewConfigError("index.model",
			fmt.Sprintf("query embedder %q does not match index model %q", model, snap.Model))
	}
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return snap.SearchVector(vec, k)
}

// hybrid runs both legs concurrently against one snapshot, min-max
// normalizes each leg's scores into [0,1] and merges them with the
// configured semantic weight. A chunk found by only one leg contributes
// zero from the other.
func (r *Retriever) hybrid(ctx context.Context, snap *index.Snapshot, query string, k int) ([]models.RetrievedChunk, error) {
	type legResult struct {
		hits []models.RetrievedChunk
		err  error
	}

	semanticCh := make(chan legResult, 1)
	lexicalCh := make(chan legResult, 1)

	go func() {
		hits, err := r.semantic(ctx, snap, query, k)
		semanticCh <- legResult{hits, err}
	}()
	go func() {
		hits, err := snap.SearchLexical(query, k)
		lexicalCh <- legResult{hits, err}
	}()

	semantic := <-semanticCh
	lexical := <-lexicalCh
	if semantic.err != nil {
		return nil, semantic.err
	}
	if lexical.err != nil {
		return nil, lexical.err
	}

	w := r.config.SemanticWeight
	merged := make(map[string]*models.RetrievedChunk)
	scores := make(map[string]float64)

	for i, score := range normalize(semantic.hits) {
		hit := semantic.hits[i]
		merged[hit.ChunkID] = &semantic.hits[i]
		scores[hit.ChunkID] += w * score
	}
	for i, score := range normalize(lexical.hits) {
		hit := lexical.hits[i]
		if _, ok := merged[hit.ChunkID]; !ok {
			merged[hit.ChunkID] = &lexical.hits[i]
		}
		scores[hit.ChunkID] += (1 - w) * score
	}

	out := make([]models.RetrievedChunk, 0, len(merged))
	for id, hit := range merged {
		h := *hit
		h.Score = scores[id]
		out = append(out, h)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if out[a].Ordinal != out[b].Ordinal {
			return out[a].Ordinal < out[b].Ordinal
		}
		return out[a].ChunkID < out[b].ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// rerank applies the reranking stage. A reranker failure degrades to the
// original ranking rather than failing the query.
func (r *Retriever) rerank(ctx context.Context, query string, hits []models.RetrievedChunk) []models.RetrievedChunk {
	if !r.config.Rerank || len(hits) == 0 {
		return hits
	}
	reranked, err := r.reranker.Rerank(ctx, query, hits)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Msg("Reranker failed, keeping original ranking")
		return hits
	}
	return reranked
}

// normalize returns each hit's score min-max scaled into [0,1]. A
// single-hit leg maps to 1.
func normalize(hits []models.RetrievedChunk) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	for i, h := range hits {
		if max == min {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - min) / (max - min)
	}
	return out
}

func applyFloor(hits []models.RetrievedChunk, floor float64) []models.RetrievedChunk {
	if floor <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= floor {
			kept = append(kept, h)
		}
	}
	return kept
}
