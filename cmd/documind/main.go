package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/documind/documind/internal/chunker"
	"github.com/documind/documind/internal/config"
	"github.com/documind/documind/internal/extract"
	"github.com/documind/documind/internal/llm"
	"github.com/documind/documind/internal/llm/anthropic"
	"github.com/documind/documind/internal/llm/openai"
	"github.com/documind/documind/internal/observability"
	"github.com/documind/documind/internal/rag"
	"github.com/documind/documind/internal/store"
	"github.com/documind/documind/internal/vector"
	"github.com/documind/documind/internal/vector/memory"
	"github.com/documind/documind/internal/vector/qdrant"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "documind",
		Short: "Question answering over ingested PDF documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/documind.yaml", "Config file path")

	var displayName string
	ingestCmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Ingest a PDF into the document store and vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, args[0], displayName)
		},
	}
	ingestCmd.Flags().StringVar(&displayName, "name", "", "Display name (defaults to the file name)")

	var (
		topK   int
		docIDs []string
	)
	queryCmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), configPath, args[0], topK, docIDs)
		},
	}
	queryCmd.Flags().IntVar(&topK, "top-k", rag.DefaultTopK, "Number of chunks to retrieve")
	queryCmd.Flags().StringSliceVar(&docIDs, "doc", nil, "Restrict retrieval to these document ids (repeatable)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queryable documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), configPath)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document from the index and the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), configPath, args[0])
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-12s %s\n", name, url)
			}
			fmt.Println("  custom       (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in documind.yaml or via environment:")
			fmt.Println("  DOCUMIND_LLM_PROVIDER=openai")
			fmt.Println("  DOCUMIND_LLM_API_KEY=sk-...")
			fmt.Println("  DOCUMIND_LLM_MODEL=gpt-4o-mini")
		},
	}

	rootCmd.AddCommand(ingestCmd, queryCmd, listCmd, deleteCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs, plus a cleanup hook.
type app struct {
	svc     *rag.Service
	cleanup func()
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = &config.Config{}
	}

	logger := newLogger(cfg.Log)

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "documind",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	st, err := store.NewStore(storagePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	idx, err := buildIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generator, embedder, err := buildProviders(cfg)
	if err != nil {
		idx.Close()
		return nil, err
	}

	chain := extract.NewChain(extract.NewLayoutExtractor(), extract.NewPlainExtractor())
	svc := rag.NewService(st, chain, chunker.New(cfg.Chunker.Size), idx, embedder, generator, logger)
	svc.SetAnswerParams(cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	cleanup := func() {
		if err := idx.Close(); err != nil {
			logger.Warn("close index", "error", err)
		}
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown tracing", "error", err)
		}
	}
	return &app{svc: svc, cleanup: cleanup}, nil
}

func storagePath(cfg *config.Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return filepath.Join("storage", "pdfs")
}

func buildIndex(ctx context.Context, cfg *config.Config) (vector.Index, error) {
	switch cfg.Vector.Backend {
	case "memory":
		return memory.New(), nil
	case "", "qdrant":
		host := cfg.Vector.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Vector.Port
		if port == 0 {
			port = 6334
		}
		collection := cfg.Vector.Collection
		if collection == "" {
			collection = "pdf_documents"
		}
		dimension := cfg.Vector.Dimension
		if dimension == 0 {
			dimension = 1536
		}
		idx, err := qdrant.New(ctx, host, port, collection, dimension)
		if err != nil {
			return nil, fmt.Errorf("connect vector index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// buildProviders creates the generation provider and the embedding provider.
// They are the same instance unless the config names a separate embedder.
func buildProviders(cfg *config.Config) (generator, embedder llm.Provider, err error) {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	generator, err = factory.Create(providerConfig(cfg.LLM))
	if err != nil {
		return nil, nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	generator = rateLimited(generator, cfg.LLM.RateLimit)

	if cfg.LLM.Embedder == nil {
		return generator, generator, nil
	}

	embedder, err = factory.Create(providerConfig(cfg.LLM.ResolveEmbedder()))
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return generator, rateLimited(embedder, cfg.LLM.RateLimit), nil
}

// providerConfig seeds the factory config with the default timeout and retry
// budget, so every provider comes back retry-wrapped, then applies the
// configured overrides.
func providerConfig(c config.LLMConfig) llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.BaseURL = c.BaseURL
	pc.EmbedModel = c.EmbedModel
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	if c.MaxRetries > 0 {
		pc.MaxRetries = c.MaxRetries
	}
	return pc
}

// rateLimited wraps a provider with the configured client-side limiter; a
// zero config leaves the provider unwrapped.
func rateLimited(p llm.Provider, rl config.RateLimitConfig) llm.Provider {
	if rl.RequestsPerMinute == 0 && rl.TokensPerMinute == 0 {
		return p
	}
	return llm.NewRateLimitProvider(p, &llm.RateLimitConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		TokensPerMinute:   rl.TokensPerMinute,
		BurstSize:         rl.Burst,
	})
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func runIngest(ctx context.Context, configPath, path, displayName string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.cleanup()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	sum, err := a.svc.Ingest(ctx, content, displayName)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %s\n", sum.DisplayName)
	fmt.Printf("  id:     %s\n", sum.DocumentID)
	fmt.Printf("  pages:  %d\n", sum.Pages)
	fmt.Printf("  chunks: %d\n", sum.Chunks)
	if sum.Summary != "" {
		fmt.Printf("  summary: %s\n", sum.Summary)
	}
	return nil
}

func runQuery(ctx context.Context, configPath, question string, topK int, docIDs []string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.cleanup()

	ans, err := a.svc.Query(ctx, question, &rag.QueryOptions{
		TopK:        topK,
		DocumentIDs: docIDs,
	})
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range ans.Sources {
			fmt.Printf("  - %s, page %d\n", src.DisplayName, src.Page)
		}
	}
	return nil
}

func runList(ctx context.Context, configPath string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.cleanup()

	refs, err := a.svc.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}
	for _, ref := range refs {
		fmt.Printf("%s  %s\n", ref.DocumentID, ref.DisplayName)
	}
	return nil
}

func runDelete(ctx context.Context, configPath, documentID string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.cleanup()

	if err := a.svc.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", documentID)
	return nil
}
