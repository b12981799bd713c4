package llm

import "context"

// InvokeOptions carries the per-call knobs every provider understands.
type InvokeOptions struct {
	MaxOutputTokens int
	Temperature     float64
	System          string
}

// InvokeResult is the standardized raw response from any provider
// client. Parsing and validation happen above the adapter layer; clients
// only normalize transport and error shapes.
type InvokeResult struct {
	RawText      string
	TokensIn     int
	TokensOut    int
	Model        string
	FinishReason string
}

// Client is the uniform invocation contract implemented by every
// provider adapter (anthropic, gemini, openai, ollama, static). Failures
// are always *llmhttp.Error values classified at the client boundary.
type Client interface {
	// Invoke sends one prompt to the provider and returns its raw text.
	Invoke(ctx context.Context, prompt, modelID string, opts InvokeOptions) (*InvokeResult, error)

	// Family returns the provider family name the client serves.
	Family() string
}
