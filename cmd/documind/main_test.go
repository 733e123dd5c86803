package main

import (
	"testing"
	"time"

	"github.com/documind/documind/internal/config"
	"github.com/documind/documind/internal/llm"
)

func TestProviderConfig_SeedsRetryDefaults(t *testing.T) {
	pc := providerConfig(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "m"})

	if pc.Timeout != 2*time.Minute {
		t.Errorf("timeout=%v, want default 2m", pc.Timeout)
	}
	if pc.MaxRetries != 3 {
		t.Errorf("max retries=%d, want default 3", pc.MaxRetries)
	}
	if pc.RetryDelay != time.Second {
		t.Errorf("retry delay=%v, want default 1s", pc.RetryDelay)
	}
	if pc.Provider != "openai" || pc.APIKey != "k" || pc.Model != "m" {
		t.Errorf("provider fields lost: %+v", pc)
	}
}

func TestProviderConfig_OverridesApply(t *testing.T) {
	pc := providerConfig(config.LLMConfig{
		Provider:   "openai",
		Timeout:    30 * time.Second,
		MaxRetries: 5,
	})

	if pc.Timeout != 30*time.Second {
		t.Errorf("timeout=%v, want 30s", pc.Timeout)
	}
	if pc.MaxRetries != 5 {
		t.Errorf("max retries=%d, want 5", pc.MaxRetries)
	}
}

func TestBuildProviders_WrapsWithRetry(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		Provider: "openai",
		APIKey:   "k",
		Model:    "gpt-4o-mini",
	}}

	generator, embedder, err := buildProviders(cfg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if _, ok := generator.(*llm.RetryProvider); !ok {
		t.Errorf("generator not retry-wrapped: %T", generator)
	}
	if embedder != generator {
		t.Error("expected generator and embedder to share one provider")
	}
}

func TestBuildProviders_SeparateEmbedder(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		Provider: "anthropic",
		APIKey:   "k",
		Model:    "claude-sonnet-4-5",
		Embedder: &config.EmbedderOverride{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
	}}

	generator, embedder, err := buildProviders(cfg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if embedder == generator {
		t.Error("embedder override should yield a distinct provider")
	}
	if _, ok := embedder.(*llm.RetryProvider); !ok {
		t.Errorf("embedder not retry-wrapped: %T", embedder)
	}
}
