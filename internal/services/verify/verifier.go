package verify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/index"
)

// citationRegex matches the [Title#ordinal] labels the prompt instructs the
// generator to cite with.
var citationRegex = regexp.MustCompile(`\[([^\[\]#]+)#(\d+)\]`)

// Result is the verifier's judgement on one generated answer.
type Result struct {
	Answer            string            // possibly rewritten (sentinel) answer text
	Citations         []models.Citation // citations that resolve to retrieved chunks
	Supported         bool
	SupportedFraction float64
	Confidence        float64
}

// Verifier checks a generated answer against the chunks it was grounded on.
// Citations that do not resolve to a retrieved chunk are stripped; answers
// whose supported fraction falls below the floor are replaced with the
// refusal sentinel rather than served as fact.
type Verifier struct {
	supportThreshold float64 // min token overlap for a span to count as supported
	supportFloor     float64 // min supported fraction for the answer to stand
	logger           arbor.ILogger
}

// NewVerifier creates a grounding verifier.
func NewVerifier(config *common.VerifyConfig, logger arbor.ILogger) (*Verifier, error) {
	if config.SupportThreshold < 0 || config.SupportThreshold > 1 {
		return nil, common.NewConfigError("verify.support_threshold", "must be in [0,1]")
	}
	if config.SupportFloor < 0 || config.SupportFloor > 1 {
		return nil, common.NewConfigError("verify.support_floor", "must be in [0,1]")
	}
	return &Verifier{
		supportThreshold: config.SupportThreshold,
		supportFloor:     config.SupportFloor,
		logger:           logger,
	}, nil
}

// Verify scores the answer's grounding. Each sentence-level span must have
// token overlap of at least the threshold with some retrieved chunk to count
// as supported. Confidence blends the retrieval top score with the supported
// fraction; an empty retrieval always verifies to the sentinel at 0.0.
func (v *Verifier) Verify(answer string, retrieval *models.RetrievalResult) *Result {
	if retrieval.Empty() {
		return &Result{
			Answer:     common.NoAnswerSentinel,
			Citations:  []models.Citation{},
			Confidence: 0,
		}
	}

	if strings.TrimSpace(answer) == "" || strings.Contains(answer, common.NoAnswerSentinel) {
		return &Result{
			Answer:     common.NoAnswerSentinel,
			Citations:  []models.Citation{},
			Confidence: 0,
		}
	}

	citations, cleaned := v.resolveCitations(answer, retrieval)

	spans := splitSpans(cleaned)
	supported := 0
	for _, span := range spans {
		if v.spanSupported(span, retrieval.Chunks) {
			supported++
		}
	}
	fraction := 0.0
	if len(spans) > 0 {
		fraction = float64(supported) / float64(len(spans))
	}

	if fraction < v.supportFloor {
		v.logger.Warn().
			Float64("supported_fraction", fraction).
			Float64("floor", v.supportFloor).
			Msg("Answer failed grounding verification")
		return &Result{
			Answer:            common.NoAnswerSentinel,
			Citations:         []models.Citation{},
			SupportedFraction: fraction,
			Confidence:        v.supportFloor,
		}
	}

	return &Result{
		Answer:            cleaned,
		Citations:         citations,
		Supported:         true,
		SupportedFraction: fraction,
		Confidence:        confidence(retrieval.TopScore(), fraction),
	}
}

// resolveCitations matches citation labels in the answer against the
// retrieved chunks. Labels that do not resolve are removed from the text;
// resolving labels stay and produce Citation records, deduplicated by chunk.
func (v *Verifier) resolveCitations(answer string, retrieval *models.RetrievalResult) ([]models.Citation, string) {
	byLabel := make(map[string]*models.RetrievedChunk, len(retrieval.Chunks))
	for i := range retrieval.Chunks {
		c := &retrieval.Chunks[i]
		byLabel[chunkLabel(c.Title, c.Ordinal)] = c
	}

	citations := make([]models.Citation, 0, 4)
	seen := make(map[string]bool)
	stripped := 0

	cleaned := citationRegex.ReplaceAllStringFunc(answer, func(label string) string {
		chunk, ok := byLabel[label]
		if !ok {
			stripped++
			return ""
		}
		if !seen[chunk.ChunkID] {
			seen[chunk.ChunkID] = true
			citations = append(citations, models.Citation{
				ChunkID:    chunk.ChunkID,
				DocumentID: chunk.DocumentID,
				Title:      chunk.Title,
				Source:     chunk.Source,
				Offset:     chunk.StartOffset,
				Ordinal:    chunk.Ordinal,
				Score:      chunk.Score,
			})
		}
		return label
	})

	if stripped > 0 {
		v.logger.Warn().
			Int("stripped", stripped).
			Msg("Removed citations that do not resolve to retrieved chunks")
		cleaned = strings.Join(strings.Fields(cleaned), " ")
	}
	return citations, cleaned
}

// spanSupported reports whether at least the threshold fraction of the
// span's terms appear in some single retrieved chunk.
func (v *Verifier) spanSupported(span string, chunks []models.RetrievedChunk) bool {
	terms := index.Tokenize(citationRegex.ReplaceAllString(span, ""))
	if len(terms) == 0 {
		return true
	}
	for i := range chunks {
		have := make(map[string]bool)
		for _, t := range index.Tokenize(chunks[i].Text) {
			have[t] = true
		}
		matched := 0
		for _, t := range terms {
			if have[t] {
				matched++
			}
		}
		if float64(matched)/float64(len(terms)) >= v.supportThreshold {
			return true
		}
	}
	return false
}

func chunkLabel(title string, ordinal int) string {
	return "[" + title + "#" + strconv.Itoa(ordinal) + "]"
}

var spanSplitRegex = regexp.MustCompile(`[.!?]\s+|\n+`)

func splitSpans(text string) []string {
	parts := spanSplitRegex.Split(text, -1)
	spans := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			spans = append(spans, p)
		}
	}
	return spans
}

// confidence blends the retrieval top score with the supported fraction,
// each clamped into [0,1], weighted equally.
func confidence(topScore, supportedFraction float64) float64 {
	return 0.5*clamp01(topScore) + 0.5*clamp01(supportedFraction)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
