package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

func newTestChunker(t *testing.T, chunkSize, overlap int) *Service {
	t.Helper()
	svc, err := NewService(&common.ChunkingConfig{ChunkSize: chunkSize, Overlap: overlap}, KeepAllPolicy(), arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func testDocument(text string) *models.Document {
	return &models.Document{ID: "doc_test", Title: "Test", Text: text}
}

func TestNewServiceConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantField string
	}{
		{"zero chunk size", 0, 0, "chunking.chunk_size"},
		{"negative overlap", 100, -1, "chunking.overlap"},
		{"overlap equals chunk size", 100, 100, "chunking.overlap"},
		{"overlap exceeds chunk size", 100, 150, "chunking.overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(&common.ChunkingConfig{ChunkSize: tt.chunkSize, Overlap: tt.overlap}, nil, arbor.NewLogger())
			require.Error(t, err)
			var cfgErr *common.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestSplitChunkTextsAreVerbatimSubstrings(t *testing.T) {
	svc := newTestChunker(t, 120, 30)
	text := buildParagraphs(12)

	chunks, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	stripped := svc.StripBoilerplate(text)
	for _, c := range chunks {
		require.LessOrEqual(t, c.EndOffset, len(stripped))
		assert.Equal(t, stripped[c.StartOffset:c.EndOffset], c.Text)
		assert.LessOrEqual(t, len(c.Text), 120)
	}
}

func TestSplitReconstruction(t *testing.T) {
	// Concatenating chunk texts with per-chunk overlap removed must
	// reproduce the stripped document exactly.
	svc := newTestChunker(t, 100, 40)
	text := buildParagraphs(20)

	chunks, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	stripped := svc.StripBoilerplate(text)

	var rebuilt strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		require.LessOrEqual(t, c.StartOffset, prevEnd, "chunks must not leave gaps")
		rebuilt.WriteString(c.Text[prevEnd-c.StartOffset:])
		prevEnd = c.EndOffset
	}
	assert.Equal(t, stripped, rebuilt.String())
}

func TestSplitOverlapWindow(t *testing.T) {
	svc := newTestChunker(t, 100, 40)
	chunks, err := svc.Split(testDocument(buildParagraphs(20)))
	require.NoError(t, err)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.GreaterOrEqual(t, cur.StartOffset, prev.EndOffset-40,
			"chunk %d starts before the overlap window", i)
		assert.LessOrEqual(t, cur.StartOffset, prev.EndOffset,
			"chunk %d leaves a gap", i)
		assert.Greater(t, cur.EndOffset, prev.EndOffset, "chunks must make progress")
	}
}

func TestSplitDeterministicOffsets(t *testing.T) {
	svc := newTestChunker(t, 150, 50)
	text := buildParagraphs(15)

	first, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	second, err := svc.Split(testDocument(text))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].StartOffset, second[i].StartOffset)
		assert.Equal(t, first[i].EndOffset, second[i].EndOffset)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, i, first[i].Ordinal)
	}
}

func TestSplitOversizedSentenceHardCut(t *testing.T) {
	svc := newTestChunker(t, 50, 10)
	// One unbroken 300-char token, no sentence or paragraph boundaries.
	text := strings.Repeat("x", 300)

	chunks, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 50)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}

func TestSplitOversizedSentenceHardCutKeepsRunesWhole(t *testing.T) {
	svc := newTestChunker(t, 50, 10)
	// One unbroken run of multibyte runes: 3 bytes each, so a 50-byte cut
	// would land mid-rune without boundary correction.
	text := strings.Repeat("日本語", 100)

	chunks, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is not valid UTF-8", i)
		assert.LessOrEqual(t, len(c.Text), 50)
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}

func TestSplitEmptyDocument(t *testing.T) {
	svc := newTestChunker(t, 100, 20)

	chunks, err := svc.Split(testDocument(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = svc.Split(testDocument("   \n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitDocumentSmallerThanChunk(t *testing.T) {
	svc := newTestChunker(t, 1000, 100)
	text := "A single short paragraph that fits in one chunk."

	chunks, err := svc.Split(testDocument(text))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[0].EndOffset)
}

func TestStripBoilerplate(t *testing.T) {
	svc, err := NewService(&common.ChunkingConfig{ChunkSize: 200, Overlap: 0}, DefaultPolicy(), arbor.NewLogger())
	require.NoError(t, err)

	text := "Real content about widgets.\n" +
		"Copyright 2024 Example Corp. All rights reserved.\n" +
		"More real content.\n" +
		"Skip to content\n" +
		"Privacy Policy\n" +
		"Final paragraph."

	stripped := svc.StripBoilerplate(text)
	assert.Contains(t, stripped, "Real content about widgets.")
	assert.Contains(t, stripped, "More real content.")
	assert.Contains(t, stripped, "Final paragraph.")
	assert.NotContains(t, stripped, "Copyright")
	assert.NotContains(t, stripped, "Skip to content")
	assert.NotContains(t, stripped, "Privacy Policy")
}

func TestKeepAllPolicyKeepsEverything(t *testing.T) {
	svc := newTestChunker(t, 200, 0)
	text := "Copyright 2024 Example Corp\nActual text."
	assert.Equal(t, text, svc.StripBoilerplate(text))
}

func buildParagraphs(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Paragraph %d covers topic %d in some detail. It has a second sentence too. And a third one for length.", i, i)
		if i < n-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
