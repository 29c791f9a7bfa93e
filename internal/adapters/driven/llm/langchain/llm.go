// Package langchain provides a generation adapter backed by langchaingo
// model providers.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Generator implements the interface.
var _ driven.Generator = (*Generator)(nil)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a langchaingo provider.
type Config struct {
	// Provider is one of openai, ollama or anthropic.
	Provider string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey is required by openai and anthropic.
	APIKey string

	// Model is the chat model name.
	Model string
}

// Generator adapts an llms.Model to the generation port.
type Generator struct {
	model llms.Model
	name  string
}

// New builds the provider client described by cfg.
func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: langchain: model is required", domain.ErrInvalidInput)
	}

	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: langchain: unknown provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: langchain %s: %v", domain.ErrLLMUnavailable, cfg.Provider, err)
	}
	return NewWithModel(model, cfg.Model), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, name string) *Generator {
	return &Generator{model: model, name: name}
}

// Generate produces the full completion for a prompt.
func (g *Generator) Generate(ctx context.Context, prompt driven.Prompt) (string, error) {
	resp, err := g.model.GenerateContent(ctx, messages(prompt), callOptions(prompt)...)
	if err != nil {
		return "", wrap(ctx, err)
	}
	return firstChoice(resp)
}

// Stream produces the completion through the provider's streaming
// callback. Providers without streaming deliver the whole text as one chunk.
func (g *Generator) Stream(ctx context.Context, prompt driven.Prompt, onChunk func(string) error) (string, error) {
	var (
		full     strings.Builder
		streamed bool
	)
	opts := append(callOptions(prompt), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		streamed = true
		full.Write(chunk)
		if onChunk == nil {
			return nil
		}
		return onChunk(string(chunk))
	}))

	resp, err := g.model.GenerateContent(ctx, messages(prompt), opts...)
	if err != nil {
		if streamed {
			return full.String(), err
		}
		return "", wrap(ctx, err)
	}
	if streamed {
		return full.String(), nil
	}

	text, err := firstChoice(resp)
	if err != nil {
		return "", err
	}
	if onChunk != nil && text != "" {
		if err := onChunk(text); err != nil {
			return text, err
		}
	}
	return text, nil
}

// ModelName returns the configured model name.
func (g *Generator) ModelName() string {
	return g.name
}

// Ping runs a one-token completion.
func (g *Generator) Ping(ctx context.Context) error {
	_, err := g.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1))
	if err != nil {
		return wrap(ctx, err)
	}
	return nil
}

// Close releases resources.
func (g *Generator) Close() error {
	return nil
}

func messages(p driven.Prompt) []llms.MessageContent {
	var out []llms.MessageContent
	if p.System != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	return append(out, llms.TextParts(llms.ChatMessageTypeHuman, p.User))
}

func callOptions(p driven.Prompt) []llms.CallOption {
	var opts []llms.CallOption
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	if p.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(p.Temperature))
	}
	return opts
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: langchain: no response choices returned", domain.ErrLLMUnavailable)
	}
	return resp.Choices[0].Content, nil
}

// wrap tags provider errors as generation failures, leaving
// cancellation untouched.
func wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w: langchain: %v", domain.ErrLLMUnavailable, err)
}
