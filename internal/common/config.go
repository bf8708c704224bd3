package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Chunking    ChunkingConfig  `toml:"chunking"`
	Index       IndexConfig     `toml:"index"`
	Retrieval   RetrievalConfig `toml:"retrieval"`
	Prompt      PromptConfig    `toml:"prompt"`
	Verify      VerifyConfig    `toml:"verify"`
	Reindex     ReindexConfig   `toml:"reindex"`
	Logging     LoggingConfig   `toml:"logging"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ChunkingConfig controls how documents are split before indexing.
// Overlap must be strictly smaller than ChunkSize.
type ChunkingConfig struct {
	ChunkSize int `toml:"chunk_size" validate:"gt=0"` // Max chunk length in characters
	Overlap   int `toml:"overlap" validate:"gte=0"`   // Overlap window in characters
}

// IndexConfig controls index builds and search limits.
type IndexConfig struct {
	Dimension      int    `toml:"dimension" validate:"gt=0"` // Embedding dimension, constant per index
	MaxK           int    `toml:"max_k" validate:"gt=0"`     // Upper bound on top-k requests
	EmbedWorkers   int    `toml:"embed_workers"`             // Bounded pool size for batch embedding
	EmbedBatchSize int    `toml:"embed_batch_size"`          // Texts per embedding API call
	Metric         string `toml:"metric" validate:"oneof=cosine dot"`
}

// RetrievalConfig controls retrieval behaviour.
type RetrievalConfig struct {
	DefaultK       int     `toml:"default_k" validate:"gt=0"`
	DefaultMode    string  `toml:"default_mode" validate:"oneof=semantic lexical hybrid"`
	SemanticWeight float64 `toml:"semantic_weight" validate:"gte=0,lte=1"` // Hybrid merge weight; lexical gets 1-w
	MinScore       float64 `toml:"min_score"`                              // Floor below which results are dropped
	Rerank         bool    `toml:"rerank"`                                 // Enable the reranking stage
	RerankDepth    int     `toml:"rerank_depth"`                           // Candidates fed to the reranker (>= k)
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	MaxLength int `toml:"max_length" validate:"gt=0"` // Max assembled prompt length in characters
}

// VerifyConfig controls grounding verification.
type VerifyConfig struct {
	SupportThreshold float64 `toml:"support_threshold" validate:"gte=0,lte=1"` // Per-span overlap threshold
	SupportFloor     float64 `toml:"support_floor" validate:"gte=0,lte=1"`     // Min supported fraction for an answer
}

// ReindexConfig controls the scheduled background reindex.
type ReindexConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`         // Google Gemini API key
	Model          string  `toml:"model"`           // Model for generation
	EmbeddingModel string  `toml:"embedding_model"` // Model for embeddings
	Timeout        string  `toml:"timeout"`         // Operation timeout as duration string
	RateLimit      string  `toml:"rate_limit"`      // Minimum interval between calls
	Temperature    float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`    // Anthropic API key
	Model       string  `toml:"model"`      // Model for generation
	MaxTokens   int     `toml:"max_tokens"` // Maximum tokens in response
	Timeout     string  `toml:"timeout"`    // Operation timeout as duration string
	RateLimit   string  `toml:"rate_limit"` // Minimum interval between calls
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderOffline uses the deterministic local backend (no network)
	LLMProviderOffline LLMProvider = "offline"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini", "claude" or "offline"
	MaxRetries      int         `toml:"max_retries"`      // Retry budget for transient failures
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in respondeo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Chunking: ChunkingConfig{
			ChunkSize: 1200,
			Overlap:   200,
		},
		Index: IndexConfig{
			Dimension:      768,
			MaxK:           50,
			EmbedWorkers:   4,
			EmbedBatchSize: 16,
			Metric:         "cosine",
		},
		Retrieval: RetrievalConfig{
			DefaultK:       5,
			DefaultMode:    "hybrid",
			SemanticWeight: 0.5,
			MinScore:       0.1,
			Rerank:         false,
			RerankDepth:    20,
		},
		Prompt: PromptConfig{
			MaxLength: 12000,
		},
		Verify: VerifyConfig{
			SupportThreshold: 0.35,
			SupportFloor:     0.5,
		},
		Reindex: ReindexConfig{
			Enabled:  false,
			Schedule: "0 */6 * * *", // Every 6 hours
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Gemini: GeminiConfig{
			APIKey:         "",
			Model:          "gemini-3-flash-preview",
			EmbeddingModel: "gemini-embedding-001",
			Timeout:        "2m",
			RateLimit:      "4s",
			Temperature:    0.2,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderOffline,
			MaxRetries:      3,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Pick up a local .env before reading env overrides; missing file is fine.
	_ = godotenv.Load()

	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RESPONDEO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RESPONDEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RESPONDEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("RESPONDEO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("RESPONDEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("RESPONDEO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration invariants that cannot be expressed as struct
// tags alone and surfaces the first violation as a ConfigError.
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return NewConfigError(first.Namespace(), fmt.Sprintf("failed %q validation", first.Tag()))
		}
		return NewConfigError("config", err.Error())
	}

	if config.Chunking.Overlap >= config.Chunking.ChunkSize {
		return NewConfigError("chunking.overlap",
			fmt.Sprintf("overlap (%d) must be smaller than chunk_size (%d)", config.Chunking.Overlap, config.Chunking.ChunkSize))
	}
	if config.Retrieval.RerankDepth < config.Retrieval.DefaultK {
		return NewConfigError("retrieval.rerank_depth", "must be at least default_k")
	}
	if _, err := ParseTimeout(config.Gemini.Timeout); err != nil {
		return NewConfigError("gemini.timeout", err.Error())
	}
	if _, err := ParseTimeout(config.Claude.Timeout); err != nil {
		return NewConfigError("claude.timeout", err.Error())
	}
	switch config.LLM.DefaultProvider {
	case LLMProviderGemini, LLMProviderClaude, LLMProviderOffline:
	default:
		return NewConfigError("llm.default_provider", fmt.Sprintf("unknown provider %q", config.LLM.DefaultProvider))
	}

	return nil
}

// ParseTimeout parses a duration string, defaulting to 2 minutes when empty.
func ParseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 2 * time.Minute, nil
	}
	return time.ParseDuration(value)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
