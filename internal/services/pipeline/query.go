package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/answers"
	"github.com/ternarybob/respondeo/internal/services/index"
	"github.com/ternarybob/respondeo/internal/services/prompt"
	"github.com/ternarybob/respondeo/internal/services/retrieval"
	"github.com/ternarybob/respondeo/internal/services/verify"
)

// QueryPipeline runs the retrieve, assemble, generate, verify sequence for
// one query. Stages run sequentially per query; concurrency lives inside the
// stages (hybrid retrieval legs, batch embedding workers), not between them.
type QueryPipeline struct {
	retriever *retrieval.Retriever
	assembler *prompt.Assembler
	llm       interfaces.LLMService
	verifier  *verify.Verifier
	cache     *answers.Cache
	idx       *index.Index
	config    *common.RetrievalConfig
	logger    arbor.ILogger
}

// NewQueryPipeline wires the query stages together.
func NewQueryPipeline(
	retriever *retrieval.Retriever,
	assembler *prompt.Assembler,
	llm interfaces.LLMService,
	verifier *verify.Verifier,
	cache *answers.Cache,
	idx *index.Index,
	config *common.RetrievalConfig,
	logger arbor.ILogger,
) *QueryPipeline {
	return &QueryPipeline{
		retriever: retriever,
		assembler: assembler,
		llm:       llm,
		verifier:  verifier,
		cache:     cache,
		idx:       idx,
		config:    config,
		logger:    logger,
	}
}

// Ask answers one query. Cached answers short-circuit before any retrieval
// or generation work; an empty retrieval short-circuits before the generator
// is ever called. Nothing is cached unless the full pipeline, verification
// included, succeeded.
func (p *QueryPipeline) Ask(ctx context.Context, req *interfaces.QueryRequest) (*models.AnswerRecord, error) {
	if req == nil || req.Query == "" {
		return nil, common.NewValidationError("query", "cannot be empty")
	}

	k := req.K
	if k == 0 {
		k = p.config.DefaultK
	}
	mode := req.Mode
	if mode == "" {
		mode = models.RetrievalMode(p.config.DefaultMode)
	}

	if version := p.idx.Version(); version > 0 {
		if record := p.cache.Get(req.Query, k, mode, version); record != nil {
			return record, nil
		}
	}

	start := time.Now()
	result, err := p.retriever.Retrieve(ctx, req.Query, k, mode)
	if err != nil {
		return nil, err
	}

	if result.Empty() {
		p.logger.Info().
			Str("query", req.Query).
			Msg("No supporting chunks found, returning refusal")
		record := p.record(req.Query, k, result, p.verifier.Verify("", result))
		if err := p.cache.Put(record); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to cache refusal answer")
		}
		return record, nil
	}

	assembled, err := p.assembler.Assemble(req.Query, result)
	if err != nil {
		return nil, err
	}

	// Last cancellation gate before the billed generation call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer, err := p.llm.Generate(ctx, assembled)
	if err != nil {
		return nil, err
	}

	verified := p.verifier.Verify(answer, result)
	record := p.record(req.Query, k, result, verified)
	record.Prompt = assembled

	if err := p.cache.Put(record); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to cache answer")
	}

	p.logger.Info().
		Str("query", req.Query).
		Str("mode", string(mode)).
		Bool("supported", verified.Supported).
		Float64("confidence", verified.Confidence).
		Dur("elapsed", time.Since(start)).
		Msg("Query answered")

	return record, nil
}

func (p *QueryPipeline) record(query string, k int, result *models.RetrievalResult, verified *verify.Result) *models.AnswerRecord {
	return &models.AnswerRecord{
		ID:                common.NewAnswerID(),
		Query:             query,
		Answer:            verified.Answer,
		Citations:         verified.Citations,
		Confidence:        verified.Confidence,
		Supported:         verified.Supported,
		SupportedFraction: verified.SupportedFraction,
		Mode:              result.Mode,
		K:                 k,
		IndexVersion:      result.IndexVersion,
		CreatedAt:         time.Now(),
	}
}
