package index

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

// Builder assembles snapshots from chunk corpora. Versions are monotonic
// across rebuilds, so cache keys derived from the version can never collide
// with an earlier corpus state.
type Builder struct {
	dimension int
	metric    string
	version   atomic.Uint64
	logger    arbor.ILogger
}

// NewBuilder creates a snapshot builder.
func NewBuilder(config *common.IndexConfig, logger arbor.ILogger) (*Builder, error) {
	if config.Dimension <= 0 {
		return nil, common.NewConfigError("index.dimension", "must be positive")
	}
	metric := config.Metric
	if metric == "" {
		metric = MetricCosine
	}
	if metric != MetricCosine && metric != MetricDot {
		return nil, common.NewConfigError("index.metric", fmt.Sprintf("unknown metric %q", metric))
	}
	return &Builder{dimension: config.Dimension, metric: metric, logger: logger}, nil
}

// Build constructs a snapshot over the given chunks. Every chunk must carry
// an embedding of the configured dimension from a single model, and must
// tokenize to at least one term; a chunk failing either check would be
// searchable on one leg but invisible on the other, so the build fails
// instead of publishing.
func (b *Builder) Build(documents []models.Document, chunks []models.Chunk) (*Snapshot, error) {
	docsByID := make(map[string]*models.Document, len(documents))
	for i := range documents {
		docsByID[documents[i].ID] = &documents[i]
	}

	snap := &Snapshot{
		Version:  b.version.Add(1),
		Dim:      b.dimension,
		Metric:   b.metric,
		entries:  make([]entry, 0, len(chunks)),
		docFreqs: make(map[string]int),
	}

	totalLength := 0
	for i := range chunks {
		chunk := &chunks[i]

		if len(chunk.Embedding) == 0 {
			return nil, &common.IndexConsistencyError{ChunkID: chunk.ID, Missing: "vector"}
		}
		if len(chunk.Embedding) != b.dimension {
			return nil, common.NewConfigError("index.dimension",
				fmt.Sprintf("chunk %s has %d-dimensional embedding, index expects %d",
					chunk.ID, len(chunk.Embedding), b.dimension))
		}
		if snap.Model == "" {
			snap.Model = chunk.Model
		} else if chunk.Model != snap.Model {
			return nil, common.NewConfigError("index.model",
				fmt.Sprintf("chunk %s embedded with %q, index built with %q",
					chunk.ID, chunk.Model, snap.Model))
		}

		terms := Tokenize(chunk.Text)
		if len(terms) == 0 {
			return nil, &common.IndexConsistencyError{ChunkID: chunk.ID, Missing: "lexical"}
		}

		doc := docsByID[chunk.DocumentID]
		if doc == nil {
			return nil, common.NewValidationError("chunk",
				fmt.Sprintf("chunk %s references unknown document %s", chunk.ID, chunk.DocumentID))
		}

		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		for term := range freqs {
			snap.docFreqs[term]++
		}
		totalLength += len(terms)

		var norm float64
		for _, v := range chunk.Embedding {
			norm += float64(v) * float64(v)
		}

		snap.entries = append(snap.entries, entry{
			ChunkID:     chunk.ID,
			DocumentID:  chunk.DocumentID,
			Title:       doc.Title,
			Source:      doc.Source,
			Text:        chunk.Text,
			StartOffset: chunk.StartOffset,
			Ordinal:     chunk.Ordinal,
			Vector:      chunk.Embedding,
			VectorNorm:  math.Sqrt(norm),
			TermFreqs:   freqs,
			Length:      len(terms),
		})
	}

	if len(snap.entries) > 0 {
		snap.avgLength = float64(totalLength) / float64(len(snap.entries))
	}

	b.logger.Info().
		Int64("version", int64(snap.Version)).
		Int("chunks", len(snap.entries)).
		Int("documents", len(documents)).
		Str("model", snap.Model).
		Msg("Index snapshot built")

	return snap, nil
}
