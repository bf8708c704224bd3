package embed

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/services/workers"
)

// Service turns chunk and query text into fixed-dimension vectors. Batch
// embedding fans out over a bounded worker pool, so ingestion never opens
// more concurrent provider calls than configured.
type Service struct {
	llm        interfaces.LLMService
	dimension  int
	maxWorkers int
	batchSize  int
	logger     arbor.ILogger
}

// NewService creates an embedding service on top of the given LLM backend.
func NewService(llm interfaces.LLMService, config *common.IndexConfig, logger arbor.ILogger) (*Service, error) {
	if llm == nil {
		return nil, common.NewConfigError("llm", "embedding backend is required")
	}
	if config.Dimension <= 0 {
		return nil, common.NewConfigError("index.dimension", "must be positive")
	}

	maxWorkers := config.EmbedWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	batchSize := config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	return &Service{
		llm:        llm,
		dimension:  config.Dimension,
		maxWorkers: maxWorkers,
		batchSize:  batchSize,
		logger:     logger,
	}, nil
}

// EmbedBatch embeds texts in order. Work is split into batches and fanned
// out over the worker pool; results land in pre-allocated slots so output
// order always matches input order regardless of completion order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	pool := workers.NewPool(ctx, s.maxWorkers, s.logger)
	pool.Start()

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchStart, batchEnd := start, end

		if err := pool.Submit(func(jobCtx context.Context) error {
			for i := batchStart; i < batchEnd; i++ {
				if err := jobCtx.Err(); err != nil {
					return err
				}
				vec, err := s.llm.Embed(jobCtx, texts[i])
				if err != nil {
					return err
				}
				if err := s.checkDimension(vec); err != nil {
					return err
				}
				vectors[i] = vec
			}
			return nil
		}); err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("submitting embed batch: %w", err)
		}
	}

	pool.Wait()

	if errs := pool.Errors(); len(errs) > 0 {
		s.logger.Warn().
			Int("failed_batches", len(errs)).
			Int("texts", len(texts)).
			Msg("Batch embedding failed")
		return nil, errs[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Workers that exit on cancellation can leave queued batches unprocessed
	// without reporting an error; an empty slot must never reach storage.
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("embedding batch incomplete: text %d has no vector", i)
		}
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Str("model", s.llm.EmbeddingModel()).
		Msg("Batch embedding complete")

	return vectors, nil
}

// EmbedQuery embeds a single query with the same model as ingestion.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, common.NewValidationError("query", "cannot be empty")
	}
	vec, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := s.checkDimension(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// ModelName returns the backing embedding model identifier.
func (s *Service) ModelName() string {
	return s.llm.EmbeddingModel()
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.dimension
}

func (s *Service) checkDimension(vec []float32) error {
	if len(vec) != s.dimension {
		return common.NewConfigError("index.dimension",
			fmt.Sprintf("model %s returned %d-dimensional vector, expected %d",
				s.llm.EmbeddingModel(), len(vec), s.dimension))
	}
	return nil
}
