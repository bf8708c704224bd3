package llm

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// NewLLMService builds the LLM backend selected by llm.default_provider.
// The offline provider needs no API keys and is fully deterministic, which
// keeps local development and tests off the billed APIs.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderOffline:
		logger.Info().Msg("Using offline LLM backend")
		return NewOfflineService(config.Index.Dimension, logger)
	case common.LLMProviderGemini, common.LLMProviderClaude:
		logger.Info().
			Str("provider", string(config.LLM.DefaultProvider)).
			Msg("Using cloud LLM backend")
		return NewCloudService(&config.Gemini, &config.Claude, &config.LLM, logger)
	default:
		return nil, common.NewConfigError("llm.default_provider",
			"must be one of: gemini, claude, offline")
	}
}
