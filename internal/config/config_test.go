package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantWarning string // substring, empty means no warnings expected
	}{
		{
			name: "clean config",
			cfg: Config{
				LLM:     LLMConfig{Provider: "openai", APIKey: "sk-test", Temperature: 0.7, MaxTokens: 1000},
				Vector:  VectorConfig{Backend: "qdrant"},
				Chunker: ChunkerConfig{Size: 1000},
			},
		},
		{
			name:        "provider without api key",
			cfg:         Config{LLM: LLMConfig{Provider: "openai"}},
			wantWarning: "api_key is empty",
		},
		{
			name:        "temperature out of range",
			cfg:         Config{LLM: LLMConfig{Provider: "openai", APIKey: "k", Temperature: 3.5}},
			wantWarning: "outside recommended range",
		},
		{
			name:        "negative max tokens",
			cfg:         Config{LLM: LLMConfig{Provider: "openai", APIKey: "k", MaxTokens: -1}},
			wantWarning: "max_tokens",
		},
		{
			name:        "unknown vector backend",
			cfg:         Config{Vector: VectorConfig{Backend: "pinecone"}},
			wantWarning: "unknown vector backend",
		},
		{
			name:        "negative chunk size",
			cfg:         Config{Chunker: ChunkerConfig{Size: -100}},
			wantWarning: "chunker size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := tt.cfg.Validate()
			if tt.wantWarning == "" {
				if len(warnings) != 0 {
					t.Fatalf("unexpected warnings: %v", warnings)
				}
				return
			}
			for _, w := range warnings {
				if strings.Contains(w, tt.wantWarning) {
					return
				}
			}
			t.Fatalf("no warning containing %q in %v", tt.wantWarning, warnings)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documind.yaml")
	content := `
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: sk-test
  temperature: 0.7
  max_tokens: 1000

vector:
  backend: memory
  collection: test_docs

chunker:
  size: 500
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider=%q", cfg.LLM.Provider)
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("backend=%q", cfg.Vector.Backend)
	}
	if cfg.Vector.Collection != "test_docs" {
		t.Errorf("collection=%q", cfg.Vector.Collection)
	}
	if cfg.Chunker.Size != 500 {
		t.Errorf("chunk size=%d", cfg.Chunker.Size)
	}

	// Unset fields fall back to defaults.
	if cfg.Vector.Port != 6334 {
		t.Errorf("port=%d, want default 6334", cfg.Vector.Port)
	}
	if cfg.Vector.Dimension != 1536 {
		t.Errorf("dimension=%d, want default 1536", cfg.Vector.Dimension)
	}
	if cfg.Storage.Path != "./storage/pdfs" {
		t.Errorf("storage path=%q, want default", cfg.Storage.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestResolveEmbedder(t *testing.T) {
	base := LLMConfig{
		Provider:   "anthropic",
		Model:      "claude-sonnet-4-5",
		APIKey:     "base-key",
		EmbedModel: "unused",
	}

	t.Run("no override returns base", func(t *testing.T) {
		got := base.ResolveEmbedder()
		if got.Provider != "anthropic" || got.APIKey != "base-key" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("override fields win, unset fields inherit", func(t *testing.T) {
		cfg := base
		cfg.Embedder = &EmbedderOverride{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		}
		got := cfg.ResolveEmbedder()
		if got.Provider != "openai" {
			t.Errorf("provider=%q", got.Provider)
		}
		if got.EmbedModel != "text-embedding-3-small" {
			t.Errorf("embed model=%q", got.EmbedModel)
		}
		if got.APIKey != "base-key" {
			t.Errorf("api key should inherit: %q", got.APIKey)
		}
	})
}
