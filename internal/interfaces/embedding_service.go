package interfaces

import (
	"context"
)

// EmbeddingService generates vector embeddings for chunk and query text.
type EmbeddingService interface {
	// EmbedBatch embeds a batch of texts, preserving input order. Batches
	// are fanned out over a bounded worker pool internally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates the embedding for a search query using the same
	// model as ingestion-time embedding.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// ModelName returns the embedding model identifier.
	ModelName() string

	// Dimension returns the fixed embedding dimension.
	Dimension() int
}
