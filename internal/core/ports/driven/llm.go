package driven

import "context"

// Generator is the external generation model.
// This is an optional service - when nil, Ask answers with the
// answer-unavailable message.
//
// Implementations may include:
//   - OpenAI-compatible chat completion APIs
//   - langchaingo-backed providers (OpenAI, Ollama)
type Generator interface {
	// Generate produces the full completion for a prompt.
	Generate(ctx context.Context, prompt Prompt) (string, error)

	// Stream produces the completion chunk by chunk, calling onChunk for
	// each piece, and returns the concatenated text.
	Stream(ctx context.Context, prompt Prompt, onChunk func(chunk string) error) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Prompt is the assembled payload handed to the generation model.
type Prompt struct {
	// System carries the fixed answering instructions.
	System string

	// User carries the context block and the question.
	User string

	// MaxTokens limits the completion. Zero uses the provider default.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
