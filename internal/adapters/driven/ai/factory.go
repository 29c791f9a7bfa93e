// Package ai provides factory functions for creating model service adapters.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/embedding/hashing"
	lcembed "github.com/custodia-labs/lectern/internal/adapters/driven/embedding/langchain"
	ollamaembed "github.com/custodia-labs/lectern/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/lectern/internal/adapters/driven/embedding/openai"
	lcllm "github.com/custodia-labs/lectern/internal/adapters/driven/llm/langchain"
	openaillm "github.com/custodia-labs/lectern/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// langchainPrefix selects a langchaingo-backed provider, e.g. "langchain-ollama".
const langchainPrefix = "langchain-"

// Embedding providers.
const (
	EmbeddingHashing = "hashing"
	EmbeddingOllama  = "ollama"
	EmbeddingOpenAI  = "openai"
)

// Generator providers.
const (
	GeneratorNone   = "none"
	GeneratorOpenAI = "openai"
)

// EmbeddingSettings selects the embedding model.
type EmbeddingSettings struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int

	// Rate caps requests per second to a hosted API. Zero is unlimited.
	Rate float64
}

// GeneratorSettings selects the generation model.
type GeneratorSettings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// IsConfigured reports whether a generator was requested.
func (s GeneratorSettings) IsConfigured() bool {
	return s.Provider != "" && s.Provider != GeneratorNone
}

// CreateEmbeddingService creates the embedding service named by settings.
// An empty provider selects the local hashing embedder.
func CreateEmbeddingService(settings EmbeddingSettings) (driven.EmbeddingService, error) {
	provider := strings.ToLower(settings.Provider)
	switch {
	case provider == "" || provider == EmbeddingHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case provider == EmbeddingOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		}), nil

	case provider == EmbeddingOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
			Rate:       settings.Rate,
		})

	case strings.HasPrefix(provider, langchainPrefix):
		return lcembed.New(lcembed.Config{
			Provider:   strings.TrimPrefix(provider, langchainPrefix),
			BaseURL:    settings.BaseURL,
			APIKey:     settings.APIKey,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateGenerator creates the generation model named by settings.
// Returns nil when no generator is configured.
func CreateGenerator(settings GeneratorSettings) (driven.Generator, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	provider := strings.ToLower(settings.Provider)
	switch {
	case provider == GeneratorOpenAI:
		return openaillm.NewGenerator(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case strings.HasPrefix(provider, langchainPrefix):
		return lcllm.New(lcllm.Config{
			Provider: strings.TrimPrefix(provider, langchainPrefix),
			BaseURL:  settings.BaseURL,
			APIKey:   settings.APIKey,
			Model:    settings.Model,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported generator provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	if svc.Dimensions() <= 0 {
		svc.Close()
		return nil, fmt.Errorf("%w: embedding dimensions unknown for model %q",
			domain.ErrEmbeddingUnavailable, svc.ModelName())
	}

	return svc, nil
}

// CreateAndValidateGenerator creates a generator and validates connectivity.
// A generator that fails validation is still returned together with the
// error, so callers may keep it and report answers as unavailable.
func CreateAndValidateGenerator(ctx context.Context, settings GeneratorSettings) (driven.Generator, error) {
	gen, err := CreateGenerator(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if gen == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := gen.Ping(ctx); err != nil {
		return gen, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return gen, nil
}
