package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

func newTestVerifier(t *testing.T, threshold, floor float64) *Verifier {
	t.Helper()
	v, err := NewVerifier(&common.VerifyConfig{SupportThreshold: threshold, SupportFloor: floor}, arbor.NewLogger())
	require.NoError(t, err)
	return v
}

func retrievalWith(chunks ...models.RetrievedChunk) *models.RetrievalResult {
	return &models.RetrievalResult{
		Query:        "when were widgets invented",
		Mode:         models.ModeHybrid,
		IndexVersion: 1,
		Chunks:       chunks,
	}
}

func widgetChunk() models.RetrievedChunk {
	return models.RetrievedChunk{
		ChunkID:    "chunk_a0",
		DocumentID: "doc_a",
		Title:      "Widgets",
		Source:     "https://example.com/widgets",
		Text:       "Widgets were invented in 1990 by the widget pioneers.",
		Ordinal:    0,
		Score:      0.8,
	}
}

func TestVerifySupportedAnswerKeepsCitations(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	result := v.Verify("Widgets were invented in 1990 [Widgets#0]", retrievalWith(widgetChunk()))

	assert.True(t, result.Supported)
	assert.Equal(t, 1.0, result.SupportedFraction)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "chunk_a0", result.Citations[0].ChunkID)
	assert.Equal(t, "Widgets", result.Citations[0].Title)
	assert.Contains(t, result.Answer, "[Widgets#0]")
	assert.Greater(t, result.Confidence, 0.5)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestVerifyEmptyRetrievalIsSentinelAtZero(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	result := v.Verify("Widgets were invented in 1990", retrievalWith())

	assert.Equal(t, common.NoAnswerSentinel, result.Answer)
	assert.Empty(t, result.Citations)
	assert.Equal(t, 0.0, result.Confidence)
	assert.False(t, result.Supported)
}

func TestVerifyUnsupportedAnswerReplacedWithSentinel(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	result := v.Verify("The moon is made of green cheese and orbits backwards", retrievalWith(widgetChunk()))

	assert.Equal(t, common.NoAnswerSentinel, result.Answer)
	assert.Empty(t, result.Citations)
	assert.False(t, result.Supported)
	assert.Equal(t, 0.5, result.Confidence, "unsupported answers report the configured floor")
}

func TestVerifyStripsUnresolvableCitations(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	answer := "Widgets were invented in 1990 [Widgets#0] [Nonexistent#7]"
	result := v.Verify(answer, retrievalWith(widgetChunk()))

	assert.NotContains(t, result.Answer, "Nonexistent")
	assert.Contains(t, result.Answer, "[Widgets#0]")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "chunk_a0", result.Citations[0].ChunkID)
}

func TestVerifyDeduplicatesCitations(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	answer := "Widgets were invented in 1990 [Widgets#0]. The widget pioneers invented them [Widgets#0]."
	result := v.Verify(answer, retrievalWith(widgetChunk()))

	assert.Len(t, result.Citations, 1)
}

func TestVerifySentinelAnswerPassesThrough(t *testing.T) {
	v := newTestVerifier(t, 0.35, 0.5)
	result := v.Verify(common.NoAnswerSentinel, retrievalWith(widgetChunk()))

	assert.Equal(t, common.NoAnswerSentinel, result.Answer)
	assert.Empty(t, result.Citations)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestVerifyConfidenceBounds(t *testing.T) {
	v := newTestVerifier(t, 0.1, 0.0)

	// Scores above 1 (hybrid sums, BM25) must clamp, not overflow.
	c := widgetChunk()
	c.Score = 7.3
	result := v.Verify("Widgets were invented in 1990", retrievalWith(c))
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
}

func TestVerifyPartialSupportFraction(t *testing.T) {
	v := newTestVerifier(t, 0.5, 0.3)
	answer := "Widgets were invented in 1990. Quantum squirrels power all modern clocks."
	result := v.Verify(answer, retrievalWith(widgetChunk()))

	assert.InDelta(t, 0.5, result.SupportedFraction, 0.01)
	assert.True(t, result.Supported, "half supported clears a 0.3 floor")
}

func TestNewVerifierConfigValidation(t *testing.T) {
	_, err := NewVerifier(&common.VerifyConfig{SupportThreshold: 1.5, SupportFloor: 0.5}, arbor.NewLogger())
	require.Error(t, err)

	_, err = NewVerifier(&common.VerifyConfig{SupportThreshold: 0.5, SupportFloor: -0.1}, arbor.NewLogger())
	require.Error(t, err)
}
