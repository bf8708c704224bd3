package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// CloudService implements interfaces.LLMService against cloud providers.
// Generation goes to the configured default provider (Claude or Gemini);
// embeddings always go to Gemini since Anthropic exposes no embedding API.
type CloudService struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	logger       arbor.ILogger

	geminiClient *genai.Client
	claudeClient anthropic.Client

	genLimiter   *rate.Limiter
	embedLimiter *rate.Limiter
	retryConfig  *RetryConfig
	timeout      time.Duration
}

// NewCloudService creates an LLM service backed by the configured cloud
// providers. Fails fast when the required API keys are missing.
func NewCloudService(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) (*CloudService, error) {
	if geminiConfig.APIKey == "" {
		return nil, common.NewConfigError("gemini.api_key", "required for cloud mode (embeddings)")
	}
	if llmConfig.DefaultProvider == common.LLMProviderClaude && claudeConfig.APIKey == "" {
		return nil, common.NewConfigError("claude.api_key", "required when claude is the default provider")
	}

	timeout, err := common.ParseTimeout(geminiConfig.Timeout)
	if err != nil {
		return nil, common.NewConfigError("gemini.timeout", err.Error())
	}

	s := &CloudService{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		logger:       logger,
		retryConfig:  NewDefaultRetryConfig(llmConfig.MaxRetries),
		timeout:      timeout,
		genLimiter:   newLimiter(providerRateLimit(llmConfig, geminiConfig, claudeConfig)),
		embedLimiter: newLimiter(geminiConfig.RateLimit),
	}

	// Clients are created once here and shared; parallel queries must never
	// mutate service state.
	geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	s.geminiClient = geminiClient

	if claudeConfig.APIKey != "" {
		s.claudeClient = anthropic.NewClient(option.WithAPIKey(claudeConfig.APIKey))
	}

	return s, nil
}

func providerRateLimit(llmConfig *common.LLMConfig, gemini *common.GeminiConfig, claude *common.ClaudeConfig) string {
	if llmConfig.DefaultProvider == common.LLMProviderClaude {
		return claude.RateLimit
	}
	return gemini.RateLimit
}

func newLimiter(interval string) *rate.Limiter {
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Embed generates an embedding vector via the Gemini embedding model.
func (s *CloudService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, common.NewValidationError("text", "cannot be empty")
	}

	client := s.geminiClient

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.embedLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *genai.EmbedContentResponse
	attempts, err := withRetry(ctx, s.retryConfig, s.logger, "embed", func() error {
		var callErr error
		resp, callErr = client.Models.EmbedContent(ctx,
			s.geminiConfig.EmbeddingModel,
			genai.Text(text),
			nil)
		return callErr
	})
	if err != nil {
		return nil, &common.StageError{
			Stage:    "embed",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %v", common.ErrEmbeddingService, err),
		}
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &common.StageError{
			Stage:    "embed",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: empty embedding response", common.ErrEmbeddingService),
		}
	}

	return resp.Embeddings[0].Values, nil
}

// Generate produces answer text for an assembled prompt using the default
// provider.
func (s *CloudService) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", common.NewValidationError("prompt", "cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.genLimiter.Wait(ctx); err != nil {
		return "", err
	}

	switch s.llmConfig.DefaultProvider {
	case common.LLMProviderClaude:
		return s.generateWithClaude(ctx, prompt)
	default:
		return s.generateWithGemini(ctx, prompt)
	}
}

func (s *CloudService) generateWithClaude(ctx context.Context, prompt string) (string, error) {
	client := s.claudeClient

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.claudeConfig.Model),
		MaxTokens: int64(s.claudeConfig.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.claudeConfig.Temperature))
	}

	var resp *anthropic.Message
	attempts, err := withRetry(ctx, s.retryConfig, s.logger, "generate/claude", func() error {
		var callErr error
		resp, callErr = client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", &common.StageError{
			Stage:    "generate",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %v", common.ErrGenerationService, err),
		}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &common.StageError{
			Stage:    "generate",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: empty response from Claude API", common.ErrGenerationService),
		}
	}

	return text.String(), nil
}

func (s *CloudService) generateWithGemini(ctx context.Context, prompt string) (string, error) {
	client := s.geminiClient

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.geminiConfig.Temperature),
	}

	var resp *genai.GenerateContentResponse
	attempts, err := withRetry(ctx, s.retryConfig, s.logger, "generate/gemini", func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, s.geminiConfig.Model, genai.Text(prompt), config)
		return callErr
	})
	if err != nil {
		return "", &common.StageError{
			Stage:    "generate",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %v", common.ErrGenerationService, err),
		}
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Text() == "" {
		return "", &common.StageError{
			Stage:    "generate",
			Attempts: attempts,
			Err:      fmt.Errorf("%w: empty response from Gemini API", common.ErrGenerationService),
		}
	}

	return resp.Text(), nil
}

// EmbeddingModel returns the Gemini embedding model identifier.
func (s *CloudService) EmbeddingModel() string {
	return s.geminiConfig.EmbeddingModel
}

// GetMode returns LLMModeCloud.
func (s *CloudService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeCloud
}

// HealthCheck verifies credentials are present for the active providers.
func (s *CloudService) HealthCheck(ctx context.Context) error {
	if s.geminiConfig.APIKey == "" {
		return fmt.Errorf("gemini API key not configured")
	}
	if s.llmConfig.DefaultProvider == common.LLMProviderClaude && s.claudeConfig.APIKey == "" {
		return fmt.Errorf("anthropic API key not configured")
	}
	return nil
}

// Close releases provider clients.
func (s *CloudService) Close() error {
	s.geminiClient = nil
	return nil
}
