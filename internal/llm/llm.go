// Package llm defines the client interface docrag's other packages
// (conversation summarization, reranking, answer composition) use to talk
// to a generative model, plus the Ollama-backed implementation.
package llm

import (
	"context"
)

// GenerateOptions tunes one Generate/GenerateStream call.
type GenerateOptions struct {
	// Model overrides the client's configured default model for this call.
	Model string

	// SystemPrompt is injected as the system-level instruction.
	SystemPrompt string

	// Temperature controls sampling randomness: 0 is deterministic, higher
	// values are more creative.
	Temperature float32

	// MaxTokens caps the response length; 0 means no limit.
	MaxTokens int
}

// StreamChunk is one piece of a streamed response.
type StreamChunk struct {
	Token string
	Done  bool
	Error error
}

// LLM is the interface every generative-model backend implements.
type LLM interface {
	// Generate blocks until the model's full response is available.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream returns a channel of StreamChunks; the channel closes
	// once generation finishes or fails. Callers must drain it to avoid
	// leaking the producing goroutine.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}
