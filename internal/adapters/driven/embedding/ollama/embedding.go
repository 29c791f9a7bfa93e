// Package ollama provides an embedding service adapter for a local Ollama
// server.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/httpjson"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 30 * time.Second
)

// knownDims lists common embedding models. Others are sized on first use.
var knownDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"bge-m3":            1024,
}

// Config configures the adapter.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions declares the vector size. Zero uses knownDims or the first
	// response.
	Dimensions int
}

// EmbeddingService embeds text with /api/embed, which takes a whole batch
// per call.
type EmbeddingService struct {
	api   *httpjson.Client
	model string

	mu   sync.Mutex
	dims int
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewEmbeddingService creates the adapter.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = knownDims[baseName(cfg.Model)]
	}

	return &EmbeddingService{
		api: httpjson.New(httpjson.Config{
			Name:     "ollama",
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Rejected: domain.ErrEmbedding,
		}),
		model: cfg.Model,
		dims:  dims,
	}
}

// baseName strips a ":tag" suffix.
func baseName(model string) string {
	name, _, _ := strings.Cut(model, ":")
	return name
}

// Embed embeds one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds every text in one request. Over-long inputs are
// truncated by the server.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := s.api.Post(ctx, "/api/embed", embedRequest{Model: s.model, Input: texts, Truncate: true}, &resp); err != nil {
		return nil, err
	}
	if got := len(resp.Embeddings); got != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs", domain.ErrEmbedding, got, len(texts))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range resp.Embeddings {
		switch {
		case len(v) == 0:
			return nil, fmt.Errorf("%w: ollama returned an empty embedding for input %d", domain.ErrEmbedding, i)
		case s.dims == 0:
			s.dims = len(v)
		case len(v) != s.dims:
			return nil, fmt.Errorf("%w: ollama model %s returned %d dimensions, expected %d",
				domain.ErrEmbedding, s.model, len(v), s.dims)
		}
	}
	return resp.Embeddings, nil
}

// Dimensions returns the vector size, or zero before the first request for
// a model of unknown size.
func (s *EmbeddingService) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// ModelName returns the model.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks that the server is up and has the model pulled. For a model
// of unknown size it also embeds a sample text.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	var tags tagsResponse
	if err := s.api.Get(ctx, "/api/tags", &tags); err != nil {
		return err
	}
	if !s.pulled(tags) {
		return fmt.Errorf("%w: ollama model %q is not available, run: ollama pull %s",
			domain.ErrEmbeddingUnavailable, s.model, s.model)
	}
	if s.Dimensions() > 0 {
		return nil
	}
	_, err := s.Embed(ctx, "ping")
	return err
}

// pulled reports whether tags lists the model. An untagged model name
// matches its :latest tag.
func (s *EmbeddingService) pulled(tags tagsResponse) bool {
	want := s.model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == s.model || m.Name == want {
			return true
		}
	}
	return false
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
