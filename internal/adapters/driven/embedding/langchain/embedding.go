// Package langchain provides an embedding service backed by langchaingo
// embedder clients.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultBatchSize is the number of texts per provider call.
const DefaultBatchSize = 32

// Config selects and configures a langchaingo embedder.
type Config struct {
	// Provider is openai or ollama.
	Provider string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey is required by openai.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimensions is the vector size. Zero asks the model on first use.
	Dimensions int

	// BatchSize bounds texts per provider call.
	BatchSize int
}

// EmbeddingService adapts a langchaingo embedder to the embedding port.
type EmbeddingService struct {
	embedder embeddings.Embedder
	model    string

	mu   sync.Mutex
	dims int
}

// New builds the provider client described by cfg.
func New(cfg Config) (*EmbeddingService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: langchain: embedding model is required", domain.ErrInvalidInput)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithEmbeddingModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: langchain: unknown provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: langchain %s: %v", domain.ErrEmbeddingUnavailable, cfg.Provider, err)
	}
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing embedder client. Newlines are kept so
// batch and single calls see identical input.
func NewWithClient(client embeddings.EmbedderClient, cfg Config) (*EmbeddingService, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &EmbeddingService{embedder: embedder, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: langchain: %v", domain.ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: langchain: got %d embeddings for %d inputs", domain.ErrEmbedding, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: langchain: empty embedding for input %d", domain.ErrEmbedding, i)
		}
	}

	s.mu.Lock()
	if s.dims == 0 {
		s.dims = len(vecs[0])
	}
	s.mu.Unlock()
	return vecs, nil
}

// Dimensions returns the vector size, or zero before the first call when
// none was configured.
func (s *EmbeddingService) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// ModelName returns the embedding model name.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping embeds a short sample text, which also learns the vector size.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
