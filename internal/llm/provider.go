package llm

import "context"

// Provider is the interface all LLM backends must implement. It covers both
// external capabilities the retrieval pipeline consumes: text generation
// (Complete) and text embedding (Embed). A deployment may use one provider
// for both or a separate embedding-only provider.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts, one per input,
	// in input order. All vectors share the deployment's fixed dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// RequestOptions tunes a single completion call. Nil fields keep the
// provider's defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}
