package eval

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"gopkg.in/yaml.v3"
)

// Case is one labeled evaluation query: the question plus the document
// titles a correct retrieval should surface.
type Case struct {
	Query          string   `yaml:"query"`
	RelevantTitles []string `yaml:"relevant_titles"`
	K              int      `yaml:"k,omitempty"`
}

// Dataset is a labeled set of evaluation cases loaded from YAML.
type Dataset struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult holds the per-case metrics.
type CaseResult struct {
	Query        string  `yaml:"query"`
	Precision    float64 `yaml:"precision"`
	Recall       float64 `yaml:"recall"`
	Faithfulness float64 `yaml:"faithfulness"` // supported fraction reported by the verifier
	Answered     bool    `yaml:"answered"`     // false when the refusal sentinel came back
}

// Report aggregates a full evaluation run.
type Report struct {
	Dataset          string       `yaml:"dataset"`
	Cases            []CaseResult `yaml:"cases"`
	MeanPrecision    float64      `yaml:"mean_precision"`
	MeanRecall       float64      `yaml:"mean_recall"`
	MeanFaithfulness float64      `yaml:"mean_faithfulness"`
	AnswerRate       float64      `yaml:"answer_rate"`
}

// Harness scores retrieval and answer quality against a labeled dataset. It
// drives the same QueryService contract the HTTP layer uses, so measured
// quality is what callers actually see.
type Harness struct {
	service  interfaces.QueryService
	defaultK int
	logger   arbor.ILogger
}

// NewHarness creates an evaluation harness.
func NewHarness(service interfaces.QueryService, defaultK int, logger arbor.ILogger) *Harness {
	return &Harness{service: service, defaultK: defaultK, logger: logger}
}

// LoadDataset parses a YAML dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Cases) == 0 {
		return nil, common.NewValidationError("dataset", "contains no cases")
	}
	return &ds, nil
}

// Run evaluates every case in the dataset. Precision@k and Recall@k are
// computed over the documents behind the answer's citations; faithfulness
// is the fraction of answer spans the verifier found supported.
func (h *Harness) Run(ctx context.Context, ds *Dataset) (*Report, error) {
	report := &Report{
		Dataset: ds.Name,
		Cases:   make([]CaseResult, 0, len(ds.Cases)),
	}

	answered := 0
	for _, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		k := c.K
		if k == 0 {
			k = h.defaultK
		}

		record, err := h.service.Ask(ctx, &interfaces.QueryRequest{Query: c.Query, K: k})
		if err != nil {
			return nil, fmt.Errorf("evaluating %q: %w", c.Query, err)
		}

		result := scoreCase(&c, record, k)
		report.Cases = append(report.Cases, result)
		if result.Answered {
			answered++
		}

		report.MeanPrecision += result.Precision
		report.MeanRecall += result.Recall
		report.MeanFaithfulness += result.Faithfulness
	}

	n := float64(len(report.Cases))
	report.MeanPrecision /= n
	report.MeanRecall /= n
	report.MeanFaithfulness /= n
	report.AnswerRate = float64(answered) / n

	h.logger.Info().
		Str("dataset", ds.Name).
		Int("cases", len(report.Cases)).
		Float64("mean_precision", report.MeanPrecision).
		Float64("mean_recall", report.MeanRecall).
		Float64("answer_rate", report.AnswerRate).
		Msg("Evaluation run complete")

	return report, nil
}

func scoreCase(c *Case, record *models.AnswerRecord, k int) CaseResult {
	relevant := make(map[string]bool, len(c.RelevantTitles))
	for _, title := range c.RelevantTitles {
		relevant[title] = true
	}

	citedTitles := make(map[string]bool)
	hits := 0
	for _, cit := range record.Citations {
		if citedTitles[cit.Title] {
			continue
		}
		citedTitles[cit.Title] = true
		if relevant[cit.Title] {
			hits++
		}
	}

	result := CaseResult{
		Query:    c.Query,
		Answered: record.Answer != common.NoAnswerSentinel,
	}
	if len(citedTitles) > 0 {
		result.Precision = float64(hits) / float64(len(citedTitles))
	}
	if len(relevant) > 0 {
		result.Recall = float64(hits) / float64(len(relevant))
	}
	if result.Answered {
		result.Faithfulness = record.SupportedFraction
	}
	return result
}
