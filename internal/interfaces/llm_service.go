package interfaces

import (
	"context"
)

// LLMMode represents the operational mode of the LLM service
type LLMMode string

const (
	// LLMModeCloud indicates the service uses cloud-based LLM APIs
	LLMModeCloud LLMMode = "cloud"

	// LLMModeOffline indicates the service uses the deterministic local backend
	LLMModeOffline LLMMode = "offline"
)

// LLMService is the capability interface the pipeline depends on: embed and
// generate, nothing else. One implementation per backend; the pipeline never
// sees a concrete client.
type LLMService interface {
	// Embed generates a fixed-dimension embedding vector for the given text.
	// Deterministic for a fixed model version: the same text always yields
	// the same vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Generate produces raw answer text for an assembled prompt. Transport
	// and retry only; grounding correctness is the verifier's job.
	Generate(ctx context.Context, prompt string) (string, error)

	// EmbeddingModel returns the model identifier used for embeddings.
	// Query-time and ingestion-time vectors must come from the same model.
	EmbeddingModel() string

	// GetMode returns the current operational mode of the LLM service.
	GetMode() LLMMode

	// HealthCheck verifies the service can handle requests.
	HealthCheck(ctx context.Context) error

	// Close releases resources and performs cleanup operations.
	Close() error
}
