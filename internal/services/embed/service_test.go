package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// countingLLM is a deterministic LLM stub that records concurrency.
type countingLLM struct {
	dimension int

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

func (c *countingLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	vec := make([]float32, c.dimension)
	vec[int(text[len(text)-1])%c.dimension] = 1
	return vec, nil
}

func (c *countingLLM) Generate(context.Context, string) (string, error) { return "", nil }
func (c *countingLLM) EmbeddingModel() string                           { return "counting" }
func (c *countingLLM) GetMode() interfaces.LLMMode                      { return interfaces.LLMModeOffline }
func (c *countingLLM) HealthCheck(context.Context) error                { return nil }
func (c *countingLLM) Close() error                                     { return nil }

func testConfig() *common.IndexConfig {
	return &common.IndexConfig{Dimension: 8, EmbedWorkers: 3, EmbedBatchSize: 2, MaxK: 50}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	llm := &countingLLM{dimension: 8}
	svc, err := NewService(llm, testConfig(), arbor.NewLogger())
	require.NoError(t, err)

	texts := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		expected, _ := llm.Embed(context.Background(), text)
		assert.Equal(t, expected, vectors[i], "vector %d out of order", i)
	}
}

func TestEmbedBatchBoundsConcurrency(t *testing.T) {
	llm := &countingLLM{dimension: 8}
	svc, err := NewService(llm, testConfig(), arbor.NewLogger())
	require.NoError(t, err)

	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "text" + string(rune('a'+i%26))
	}

	_, err = svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.LessOrEqual(t, llm.maxInFlight, 3, "embedding must not exceed the worker bound")
}

func TestEmbedBatchCancelledContextNeverSucceedsPartially(t *testing.T) {
	llm := &countingLLM{dimension: 8}
	svc, err := NewService(llm, testConfig(), arbor.NewLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	texts := []string{"alpha", "bravo", "charlie"}
	// Workers racing the cancelled context may or may not drain queued
	// batches; either way the call must fail rather than hand back vectors
	// with empty slots.
	for i := 0; i < 200; i++ {
		vectors, err := svc.EmbedBatch(ctx, texts)
		require.Error(t, err, "iteration %d: a cancelled batch must not report success", i)
		assert.Nil(t, vectors)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	svc, err := NewService(&countingLLM{dimension: 8}, testConfig(), arbor.NewLogger())
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedQueryDimensionEnforced(t *testing.T) {
	// Backend returns 8-dimensional vectors but the index is configured for 16.
	cfg := testConfig()
	cfg.Dimension = 16
	svc, err := NewService(&countingLLM{dimension: 8}, cfg, arbor.NewLogger())
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "widgets")
	require.Error(t, err)
	var cfgErr *common.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEmbedQueryEmptyRejected(t *testing.T) {
	svc, err := NewService(&countingLLM{dimension: 8}, testConfig(), arbor.NewLogger())
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.True(t, common.IsValidation(err))
}

func TestServiceMetadata(t *testing.T) {
	svc, err := NewService(&countingLLM{dimension: 8}, testConfig(), arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "counting", svc.ModelName())
	assert.Equal(t, 8, svc.Dimension())
}
