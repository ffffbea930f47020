package provider

import "context"

// ModelClient is the engine's single dependency on a generative language
// model: one prompt in, one generated text out. No streaming; a transport
// that wants to stream does so over already-generated turns.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to a ModelClient. Handy for tests and for
// scripting deterministic personas.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate implements ModelClient.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
