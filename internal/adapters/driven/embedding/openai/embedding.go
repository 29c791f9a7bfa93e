// Package openai provides an embedding service adapter for the OpenAI
// embeddings API and compatible servers.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/httpjson"
	"github.com/custodia-labs/lectern/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// maxInputs is the API's per-request input limit.
	maxInputs = 2048
)

// nativeDims lists the output size of the hosted models. Other models, as
// served by compatible servers, report theirs on the first request.
var nativeDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config configures the adapter.
type Config struct {
	// APIKey is required.
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions shortens text-embedding-3 vectors. For other models it
	// only declares the expected size.
	Dimensions int

	// Rate caps requests per second. Zero means unlimited.
	Rate float64
}

// EmbeddingService embeds text through the /embeddings endpoint.
type EmbeddingService struct {
	api   *httpjson.Client
	model string

	// shorten is set when the model accepts a dimensions parameter.
	shorten bool

	mu   sync.Mutex
	dims int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates the adapter.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidInput)
	}
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
		dims = nativeDims[cfg.Model]
	}

	return &EmbeddingService{
		api: httpjson.New(httpjson.Config{
			Name:      "openai",
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			Header:    http.Header{"Authorization": {"Bearer " + cfg.APIKey}},
			RateLimit: ratelimit.Config{RequestsPerSecond: cfg.Rate},
			Rejected:  domain.ErrEmbedding,
		}),
		model:   cfg.Model,
		shorten: cfg.Dimensions > 0 && strings.HasPrefix(cfg.Model, "text-embedding-3-"),
		dims:    dims,
	}, nil
}

// Embed embeds one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most maxInputs.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for batch := range slices.Chunk(texts, maxInputs) {
		vecs, err := s.request(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *EmbeddingService) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: s.model, Input: texts}
	if s.shorten {
		req.Dimensions = s.Dimensions()
	}

	var resp embeddingResponse
	if err := s.api.Post(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: openai: %s", domain.ErrEmbedding, resp.Error.Message)
	}

	// Results carry their input index and may arrive out of order.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: openai: embedding index %d out of range", domain.ErrEmbedding, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: openai: no embedding for input %d", domain.ErrEmbedding, i)
		}
		if err := s.checkDims(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// checkDims adopts the first vector size seen when none was known and
// rejects vectors of any other size.
func (s *EmbeddingService) checkDims(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = n
		return nil
	}
	if n != s.dims {
		return fmt.Errorf("%w: openai: model %s returned %d dimensions, expected %d",
			domain.ErrEmbedding, s.model, n, s.dims)
	}
	return nil
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

// Ping checks the API key against /models. For a model of unknown size it
// also embeds a sample text so Dimensions is known afterwards.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/models", nil); err != nil {
		return err
	}
	if s.Dimensions() > 0 {
		return nil
	}
	_, err := s.Embed(ctx, "ping")
	return err
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
