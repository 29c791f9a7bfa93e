// Package searxng implements web search against a SearXNG instance's
// JSON API.
package searxng

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/normalisers/html"
)

// Ensure Search implements the interface.
var _ driven.WebSearch = (*Search)(nil)

// Default configuration values.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 1.0
	DefaultBurst   = 3
)

// Config holds configuration for the SearXNG client.
type Config struct {
	// BaseURL is the instance URL (required).
	BaseURL string

	// Language restricts results, e.g. "en". Empty lets the instance decide.
	Language string

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration

	// RateLimit throttles requests. Zero values use DefaultRate and DefaultBurst.
	RateLimit ratelimit.Config
}

// Search queries a SearXNG instance.
type Search struct {
	client   *http.Client
	baseURL  string
	language string
	limiter  *ratelimit.Limiter
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// New creates a SearXNG client.
func New(cfg Config) (*Search, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: searxng: base URL is required", domain.ErrInvalidInput)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRate
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultBurst
	}
	return &Search{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		limiter:  ratelimit.New(cfg.RateLimit),
	}, nil
}

// Search returns up to limit results for query. Results without a URL are
// skipped.
func (s *Search) Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if s.language != "" {
		params.Set("language", s.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searxng: %v", domain.ErrWebSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.limiter.Backoff(ratelimit.RetryAfter(resp.Header, time.Now()))
		return nil, fmt.Errorf("%w: searxng (status %d)", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: searxng (status %d): %s", domain.ErrWebSearchUnavailable, resp.StatusCode, body)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: searxng: decode response: %v", domain.ErrWebSearchUnavailable, err)
	}

	//nolint:prealloc // size unknown until results are filtered
	var results []domain.WebResult
	for _, r := range out.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, domain.WebResult{
			Title:   html.Inline(r.Title),
			Snippet: html.Inline(r.Content),
			URL:     r.URL,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
