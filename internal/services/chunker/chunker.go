package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

// Service splits document text into overlapping chunks with stable offsets.
//
// Invariants:
//   - every chunk text is a verbatim substring of the boilerplate-stripped
//     document text, addressed by [StartOffset, EndOffset)
//   - chunks tile the stripped text: each chunk starts at or before the
//     previous chunk's end, and never earlier than end-overlap
//   - output is deterministic for identical input and config
type Service struct {
	chunkSize int
	overlap   int
	policy    BoilerplatePolicy
	logger    arbor.ILogger
}

// NewService creates a chunker. Overlap must be strictly smaller than
// chunkSize; violations are a ConfigError.
func NewService(cfg *common.ChunkingConfig, policy BoilerplatePolicy, logger arbor.ILogger) (*Service, error) {
	if cfg.ChunkSize <= 0 {
		return nil, common.NewConfigError("chunking.chunk_size", "must be positive")
	}
	if cfg.Overlap < 0 {
		return nil, common.NewConfigError("chunking.overlap", "must not be negative")
	}
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, common.NewConfigError("chunking.overlap", "must be smaller than chunk_size")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Service{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		policy:    policy,
		logger:    logger,
	}, nil
}

// StripBoilerplate removes boilerplate lines (headers, footers, navigation)
// according to the configured policy. The result is the text all chunk
// offsets refer to.
func (s *Service) StripBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if s.policy.IsBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Split chunks one document. Splitting prefers paragraph boundaries, falls
// back to sentence boundaries inside oversized paragraphs, and hard-cuts only
// when a single sentence exceeds the chunk size.
func (s *Service) Split(doc *models.Document) ([]*models.Chunk, error) {
	stripped := s.StripBoilerplate(doc.Text)
	if strings.TrimSpace(stripped) == "" {
		return nil, nil
	}

	units := splitUnits(stripped, s.chunkSize)
	if len(units) == 0 {
		return nil, nil
	}

	var chunks []*models.Chunk
	ordinal := 0
	i := 0 // first unit of the current chunk

	for i < len(units) {
		start := units[i].start

		// Greedily pack units while the chunk stays within budget. Units are
		// guaranteed not to exceed chunkSize, so at least one always fits.
		j := i + 1
		for j < len(units) && units[j].end-start <= s.chunkSize {
			j++
		}
		end := units[j-1].end

		chunks = append(chunks, &models.Chunk{
			ID:          common.NewChunkID(),
			DocumentID:  doc.ID,
			Text:        stripped[start:end],
			StartOffset: start,
			EndOffset:   end,
			Ordinal:     ordinal,
		})
		ordinal++

		if end >= len(stripped) {
			break
		}

		// The next chunk starts at the earliest unit boundary inside the
		// overlap window (end-overlap, end]. When no boundary falls inside
		// the window the chunks simply abut without overlap.
		next := j
		for m := i + 1; m < j; m++ {
			if units[m].start >= end-s.overlap {
				next = m
				break
			}
		}
		i = next
	}

	if s.logger != nil {
		s.logger.Debug().
			Str("doc_id", doc.ID).
			Int("chunks", len(chunks)).
			Int("stripped_len", len(stripped)).
			Msg("Document chunked")
	}

	return chunks, nil
}

// unit is a half-open [start, end) span of the stripped text. Units cover the
// text exactly: unit n+1 starts where unit n ends.
type unit struct {
	start, end int
}

// splitUnits segments text into paragraph units, re-splitting any paragraph
// larger than max into sentence units, and hard-cutting any sentence still
// larger than max. Hard cuts land on rune boundaries. Separators stay
// attached to the preceding unit so concatenating all units reproduces the
// text byte for byte.
func splitUnits(text string, max int) []unit {
	var units []unit
	for _, p := range splitAfter(text, "\n\n") {
		if p.end-p.start <= max {
			units = append(units, p)
			continue
		}
		for _, sent := range splitSentenceUnits(text, p) {
			if sent.end-sent.start <= max {
				units = append(units, sent)
				continue
			}
			for at := sent.start; at < sent.end; {
				stop := at + max
				if stop >= sent.end {
					stop = sent.end
				} else {
					// A hard cut must land on a rune boundary or the chunk
					// text is not valid UTF-8.
					for stop > at && !utf8.RuneStart(text[stop]) {
						stop--
					}
					if stop == at {
						_, size := utf8.DecodeRuneInString(text[at:])
						stop = at + size
					}
				}
				units = append(units, unit{start: at, end: stop})
				at = stop
			}
		}
	}
	return units
}

// splitAfter returns spans split after each occurrence of sep, separator
// included in the preceding span.
func splitAfter(text string, sep string) []unit {
	var spans []unit
	start := 0
	for {
		idx := strings.Index(text[start:], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		// Fold any run of extra newlines into the same span.
		for end < len(text) && text[end] == '\n' {
			end++
		}
		spans = append(spans, unit{start: start, end: end})
		start = end
	}
	if start < len(text) {
		spans = append(spans, unit{start: start, end: len(text)})
	}
	return spans
}

// sentenceEnders mark boundaries splitSentenceUnits cuts after, trailing
// space included.
var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

func splitSentenceUnits(text string, span unit) []unit {
	var spans []unit
	start := span.start
	for at := span.start; at < span.end-1; at++ {
		for _, end := range sentenceEnders {
			if at+len(end) <= span.end && text[at:at+len(end)] == end {
				spans = append(spans, unit{start: start, end: at + len(end)})
				start = at + len(end)
				at = start - 1
				break
			}
		}
	}
	if start < span.end {
		spans = append(spans, unit{start: start, end: span.end})
	}
	return spans
}
