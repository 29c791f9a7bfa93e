package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Embedder defaults.
const (
	DefaultMaxInputWords = 256
	DefaultBatchSize     = 16
)

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	// MaxInputWords is the head-truncation limit applied before every call.
	MaxInputWords int

	// BatchSize is the number of texts sent per batch call.
	BatchSize int

	// Retry bounds each model call.
	Retry domain.RetryPolicy
}

// Embedder wraps an EmbeddingService with deterministic truncation,
// batching and per-item fallback.
type Embedder struct {
	service driven.EmbeddingService
	cfg     EmbedderConfig
	retrier retrier
}

// NewEmbedder creates an Embedder. Zero config values use defaults.
func NewEmbedder(service driven.EmbeddingService, cfg EmbedderConfig) *Embedder {
	if cfg.MaxInputWords <= 0 {
		cfg.MaxInputWords = DefaultMaxInputWords
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = domain.DefaultRetryPolicy
	}
	return &Embedder{service: service, cfg: cfg}
}

// BatchSize returns the configured batch size.
func (e *Embedder) BatchSize() int {
	return e.cfg.BatchSize
}

// ModelName returns the underlying model name.
func (e *Embedder) ModelName() string {
	if e.service == nil {
		return ""
	}
	return e.service.ModelName()
}

// Truncate keeps the first MaxInputWords words of text.
// Text within the limit is returned unchanged.
func (e *Embedder) Truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= e.cfg.MaxInputWords {
		return text
	}
	return strings.Join(words[:e.cfg.MaxInputWords], " ")
}

// EmbedQuery embeds a single question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.service == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	var vec []float32
	_, err := e.retrier.do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		v, err := e.service.Embed(ctx, e.Truncate(text))
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// EmbedResult is the outcome of embedding one text.
type EmbedResult struct {
	Vector []float32

	// Err is set when the text was skipped after retries were exhausted.
	Err error
}

// EmbedTexts embeds texts in batches. When a batch call fails after retries,
// each of its texts is embedded on its own so one bad input is skipped
// without losing the rest. The result has one entry per text, in order.
// The returned int counts retries performed.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([]EmbedResult, int, error) {
	if e.service == nil {
		return nil, 0, domain.ErrEmbeddingUnavailable
	}

	results := make([]EmbedResult, len(texts))
	retries := 0
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch := make([]string, end-start)
		for i := range batch {
			batch[i] = e.Truncate(texts[start+i])
		}

		var vecs [][]float32
		n, err := e.retrier.do(ctx, e.cfg.Retry, func(ctx context.Context) error {
			v, err := e.service.EmbedBatch(ctx, batch)
			if err != nil {
				return err
			}
			if len(v) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(v), len(batch))
			}
			vecs = v
			return nil
		})
		retries += n
		if ctx.Err() != nil {
			return nil, retries, ctx.Err()
		}
		if err == nil {
			for i, v := range vecs {
				results[start+i] = EmbedResult{Vector: v}
			}
			continue
		}

		logger.Warn("Embedding batch of %d failed, retrying items individually: %v", len(batch), err)
		for i, text := range batch {
			var vec []float32
			n, err := e.retrier.do(ctx, e.cfg.Retry, func(ctx context.Context) error {
				v, err := e.service.Embed(ctx, text)
				if err != nil {
					return err
				}
				vec = v
				return nil
			})
			retries += n
			if ctx.Err() != nil {
				return nil, retries, ctx.Err()
			}
			results[start+i] = EmbedResult{Vector: vec, Err: err}
		}
	}
	return results, retries, nil
}
