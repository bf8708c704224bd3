package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// OfflineService is a fully local LLM backend with no network calls.
// Embeddings use deterministic feature hashing, so the same text always maps
// to the same unit vector and token overlap correlates with cosine
// similarity. Generation is extractive: it returns the source sentence that
// best matches the question, with its citation label.
type OfflineService struct {
	dimension int
	logger    arbor.ILogger
}

// NewOfflineService creates the offline backend.
func NewOfflineService(dimension int, logger arbor.ILogger) (*OfflineService, error) {
	if dimension <= 0 {
		return nil, common.NewConfigError("index.dimension", "must be positive")
	}
	return &OfflineService{dimension: dimension, logger: logger}, nil
}

// Embed maps text to a unit vector via token feature hashing.
func (s *OfflineService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, common.NewValidationError("text", "cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(s.dimension))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// sourceBlockRegex matches the "[n] Title#ordinal" header lines the prompt
// assembler emits for each retrieved chunk.
var sourceBlockRegex = regexp.MustCompile(`(?m)^\[\d+\] (.+)#(\d+)$`)

// Generate produces an extractive answer from the assembled prompt: the
// source sentence with the highest token overlap against the question,
// cited with its source label. Falls back to the refusal sentinel when no
// sentence overlaps the question at all.
func (s *OfflineService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	question := extractQuestion(prompt)
	questionTokens := tokenSet(tokenize(question))
	if len(questionTokens) == 0 {
		return common.NoAnswerSentinel, nil
	}

	headers := sourceBlockRegex.FindAllStringSubmatchIndex(prompt, -1)
	if len(headers) == 0 {
		return common.NoAnswerSentinel, nil
	}

	// Best-matching sentence per source document, in prompt order.
	type candidate struct {
		score    int
		sentence string
		label    string
	}
	var order []string
	byTitle := make(map[string]candidate)

	for i, loc := range headers {
		title := prompt[loc[2]:loc[3]]
		ordinal := prompt[loc[4]:loc[5]]

		bodyStart := loc[1]
		bodyEnd := len(prompt)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		if q := strings.Index(prompt[bodyStart:bodyEnd], "\nQuestion:"); q >= 0 {
			bodyEnd = bodyStart + q
		}
		body := prompt[bodyStart:bodyEnd]

		for _, sentence := range splitSentences(body) {
			score := 0
			for token := range tokenSet(tokenize(sentence)) {
				if questionTokens[token] {
					score++
				}
			}
			if prev, seen := byTitle[title]; !seen || score > prev.score {
				if !seen {
					order = append(order, title)
				}
				byTitle[title] = candidate{
					score:    score,
					sentence: strings.TrimSpace(sentence),
					label:    fmt.Sprintf("%s#%s", title, ordinal),
				}
			}
		}
	}

	bestScore := 0
	for _, title := range order {
		if c := byTitle[title]; c.score > bestScore {
			bestScore = c.score
		}
	}
	if bestScore == 0 {
		return common.NoAnswerSentinel, nil
	}

	// Distinct documents that match the question equally well disagree with
	// each other; surface both claims instead of silently picking one.
	var top []candidate
	for _, title := range order {
		if c := byTitle[title]; c.score == bestScore {
			top = append(top, c)
		}
	}
	if len(top) > 1 && top[0].sentence != top[1].sentence {
		return fmt.Sprintf("The sources disagree: %s [%s]. %s [%s].",
			top[0].sentence, top[0].label, top[1].sentence, top[1].label), nil
	}

	return fmt.Sprintf("%s [%s]", top[0].sentence, top[0].label), nil
}

// EmbeddingModel returns the offline model identifier, versioned so that a
// dimension change reads as a different model.
func (s *OfflineService) EmbeddingModel() string {
	return fmt.Sprintf("offline-hash-v1/%d", s.dimension)
}

// GetMode returns LLMModeOffline.
func (s *OfflineService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeOffline
}

// HealthCheck always succeeds for the offline backend.
func (s *OfflineService) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op for the offline backend.
func (s *OfflineService) Close() error {
	return nil
}

func extractQuestion(prompt string) string {
	idx := strings.LastIndex(prompt, "\nQuestion:")
	if idx < 0 {
		return prompt
	}
	question := prompt[idx+len("\nQuestion:"):]
	if end := strings.Index(question, "\nAnswer:"); end >= 0 {
		question = question[:end]
	}
	return strings.TrimSpace(question)
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(text string) []string {
	raw := tokenRegex.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) >= 2 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

var sentenceSplitRegex = regexp.MustCompile(`[.!?]\s+|\n`)

func splitSentences(text string) []string {
	parts := sentenceSplitRegex.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}
