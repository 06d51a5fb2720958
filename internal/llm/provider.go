// Package llm wraps the external language-model API used by the AI-assisted
// mapping stage.
package llm

import "context"

// Provider is the interface the mapping pipeline depends on. Implementations
// must return the raw model text; callers own parsing and validation.
type Provider interface {
	// GenerateJSON sends a prompt expecting a JSON object response
	GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error)
}
