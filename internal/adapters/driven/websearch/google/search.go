// Package google implements web search with the Google Programmable Search
// Engine (Custom Search JSON API).
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

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

	// maxResults is the page size cap of the Custom Search API.
	maxResults = 10
)

// Config holds configuration for the Custom Search client.
type Config struct {
	// EngineID is the Programmable Search Engine ID, the "cx" parameter (required).
	EngineID string

	// APIKey authenticates requests. Either APIKey or AccessToken is required.
	APIKey string

	// AccessToken is an OAuth2 bearer token, e.g. from
	// "gcloud auth print-access-token". Used when APIKey is empty.
	AccessToken string

	// Endpoint overrides the API base URL.
	Endpoint string

	// Language restricts results, e.g. "en". Empty searches every language.
	Language string

	// Timeout bounds each request (default: 10s).
	Timeout time.Duration

	// RateLimit throttles requests. Zero values use DefaultRate and DefaultBurst.
	RateLimit ratelimit.Config
}

// Search queries the Custom Search API.
type Search struct {
	svc      *customsearch.Service
	engineID string
	language string
	timeout  time.Duration
	limiter  *ratelimit.Limiter
}

// New creates a Custom Search client.
func New(ctx context.Context, cfg Config) (*Search, error) {
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("%w: google: engine ID is required", domain.ErrInvalidInput)
	}

	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
		opts = append(opts, option.WithTokenSource(ts))
	default:
		return nil, fmt.Errorf("%w: google: an API key or access token is required", domain.ErrInvalidInput)
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
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

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create service: %w", err)
	}
	return &Search{
		svc:      svc,
		engineID: cfg.EngineID,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		limiter:  ratelimit.New(cfg.RateLimit),
	}, nil
}

// Search returns up to limit results for query, capped at the API's page
// size. Results without a link are skipped.
func (s *Search) Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	if limit > maxResults {
		limit = maxResults
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	call := s.svc.Cse.List().Cx(s.engineID).Q(query).Num(int64(limit)).Context(ctx)
	if s.language != "" {
		call = call.Lr("lang_" + s.language)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, s.wrapError(err)
	}

	//nolint:prealloc // size unknown until results are filtered
	var results []domain.WebResult
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, domain.WebResult{
			Title:   html.Inline(item.Title),
			Snippet: html.Inline(item.Snippet),
			URL:     item.Link,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// wrapError maps API failures onto the domain's web search errors.
func (s *Search) wrapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			s.limiter.Backoff(ratelimit.RetryAfter(gerr.Header, time.Now()))
			return fmt.Errorf("%w: google (status %d)", domain.ErrRateLimited, gerr.Code)
		}
		return fmt.Errorf("%w: google (status %d): %s", domain.ErrWebSearchUnavailable, gerr.Code, gerr.Message)
	}
	return fmt.Errorf("%w: google: %v", domain.ErrWebSearchUnavailable, err)
}
