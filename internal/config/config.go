package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Vector  VectorConfig  `mapstructure:"vector"`
	Storage StorageConfig `mapstructure:"storage"`
	Chunker ChunkerConfig `mapstructure:"chunker"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Log     LogConfig     `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	EmbedModel  string  `mapstructure:"embed_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Timeout and MaxRetries tune the retry wrapper around every provider
	// call. Zero values keep the built-in defaults (2m, 3 retries).
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`

	// Embedder optionally names a separate provider for embeddings; unset
	// fields inherit from the top-level LLM config. Needed when generation
	// runs on a provider without an embeddings endpoint (e.g. Anthropic).
	Embedder *EmbedderOverride `mapstructure:"embedder"`

	// RateLimit throttles provider calls client-side. Zero values mean
	// unlimited.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps provider call rates, useful on free-tier APIs.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// EmbedderOverride allows a dedicated embedding provider configuration.
type EmbedderOverride struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveEmbedder returns the LLMConfig used for embedding calls, with
// override fields applied over the generation config.
func (c LLMConfig) ResolveEmbedder() LLMConfig {
	if c.Embedder == nil {
		return c
	}
	resolved := c
	if c.Embedder.Provider != "" {
		resolved.Provider = c.Embedder.Provider
	}
	if c.Embedder.Model != "" {
		resolved.EmbedModel = c.Embedder.Model
	}
	if c.Embedder.APIKey != "" {
		resolved.APIKey = c.Embedder.APIKey
	}
	if c.Embedder.BaseURL != "" {
		resolved.BaseURL = c.Embedder.BaseURL
	}
	return resolved
}

type VectorConfig struct {
	Backend    string `mapstructure:"backend"` // "qdrant" or "memory"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Dimension  int    `mapstructure:"dimension"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type ChunkerConfig struct {
	Size int `mapstructure:"size"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Vector.Backend != "" && c.Vector.Backend != "qdrant" && c.Vector.Backend != "memory" {
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s', expected qdrant or memory", c.Vector.Backend))
	}

	if c.Chunker.Size < 0 {
		warnings = append(warnings, fmt.Sprintf("chunker size %d is negative", c.Chunker.Size))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DOCUMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "pdf_documents")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("storage.path", "./storage/pdfs")
	v.SetDefault("chunker.size", 1000)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
