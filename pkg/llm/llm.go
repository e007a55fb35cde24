// Package llm defines the language-model port used by phase nodes, the error
// taxonomy for model calls, and a resilient wrapper adding per-call timeouts,
// rate limiting and retries.
package llm

import "context"

// Request is one completion call.
type Request struct {
	// Name labels the call in logs and errors ("extract", "plan", ...).
	Name   string
	System string
	Prompt string
	// JSON asks the model for a JSON object response.
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function into a Client.
type Func func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
