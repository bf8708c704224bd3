package prompt

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

const instructions = `Answer the question using only the numbered sources below.
Cite every claim with the source label in square brackets, for example [Title#0].
If the sources disagree with each other, say so explicitly and cite both sides.
If the sources do not contain the answer, reply exactly:
` + common.NoAnswerSentinel + "\n"

// Assembler builds generation prompts from retrieval results. The output is
// deterministic for a given input: same chunks in the same order always
// yield the identical prompt, which keeps cached answers reproducible.
type Assembler struct {
	maxLength int
	logger    arbor.ILogger
}

// NewAssembler creates a prompt assembler.
func NewAssembler(config *common.PromptConfig, logger arbor.ILogger) (*Assembler, error) {
	if config.MaxLength <= 0 {
		return nil, common.NewConfigError("prompt.max_length", "must be positive")
	}
	return &Assembler{maxLength: config.MaxLength, logger: logger}, nil
}

// Assemble renders the prompt for a query with its retrieved chunks. Each
// chunk becomes a numbered source block headed "[n] Title#ordinal". When the
// assembled prompt would exceed the length budget, whole chunks are dropped
// from the lowest-scoring end; chunk text is never truncated mid-chunk.
func (a *Assembler) Assemble(query string, result *models.RetrievalResult) (string, error) {
	if query == "" {
		return "", common.NewValidationError("query", "cannot be empty")
	}
	if result.Empty() {
		return "", common.NewValidationError("retrieval", "no chunks to assemble")
	}

	chunks := result.Chunks
	for len(chunks) > 0 {
		prompt := render(query, chunks)
		if len(prompt) <= a.maxLength {
			if dropped := len(result.Chunks) - len(chunks); dropped > 0 {
				a.logger.Debug().
					Int("dropped", dropped).
					Int("kept", len(chunks)).
					Msg("Dropped lowest-scoring chunks to fit the prompt budget")
			}
			return prompt, nil
		}
		chunks = chunks[:len(chunks)-1]
	}

	return "", common.NewValidationError("prompt",
		fmt.Sprintf("query and instructions alone exceed the %d character budget", a.maxLength))
}

func render(query string, chunks []models.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\nSources:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s#%d\n", i+1, c.Title, c.Ordinal)
		b.WriteString(strings.TrimSpace(c.Text))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", query)
	return b.String()
}
