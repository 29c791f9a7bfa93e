// Package httpjson is the shared JSON-over-HTTP client of the model
// adapters. It throttles requests, honours Retry-After and maps failures
// onto the domain error taxonomy.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 4096

// Config configures a Client.
type Config struct {
	// Name prefixes every error, e.g. "openai".
	Name string

	BaseURL string
	Timeout time.Duration

	// Header is sent with every request, e.g. Authorization.
	Header http.Header

	RateLimit ratelimit.Config

	// Rejected is wrapped by errors for 4xx responses other than 429,
	// e.g. domain.ErrEmbedding.
	Rejected error
}

// Client sends JSON requests to one service.
type Client struct {
	name     string
	baseURL  string
	header   http.Header
	rejected error
	http     *http.Client
	limiter  *ratelimit.Limiter
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Rejected == nil {
		cfg.Rejected = domain.ErrInvalidInput
	}
	return &Client{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		header:   cfg.Header,
		rejected: cfg.Rejected,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  ratelimit.New(cfg.RateLimit),
	}
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends in as JSON to path and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

// Get fetches path and decodes the response into out. A nil out discards
// the body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, http.NoBody, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %s %s: %v", domain.ErrTransientIO, c.name, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Backoff(ratelimit.RetryAfter(resp.Header, time.Now()))
		}
		return c.statusError(resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransientIO, c.name, err)
	}
	return nil
}

func (c *Client) statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var kind error
	switch {
	case code == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case code >= 500:
		kind = domain.ErrTransientIO
	default:
		kind = c.rejected
	}
	return &StatusError{Code: code, Body: msg, kind: kind, service: c.name}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string

	kind    error
	service string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %s (status %d)", e.kind, e.service, e.Code)
	}
	return fmt.Sprintf("%v: %s (status %d): %s", e.kind, e.service, e.Code, e.Body)
}

// Unwrap exposes the domain error the status maps to.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
