// Package remote classifies page regions by calling a layout-detection
// model served over HTTP.
//
// The service accepts POST {base}/v1/layout with a JSON body
//
//	{"image": "<base64 png>", "width": 1280, "height": 720}
//
// and answers with
//
//	{"regions": [{"box": [x, y, w, h], "label": "figure", "score": 0.93}]}
//
// Boxes are in pixels of the submitted image.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Classifier implements the interface.
var _ driven.RegionClassifier = (*Classifier)(nil)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second
	layoutPath     = "/v1/layout"
)

// figureLabels are model labels mapped to domain.LabelFigure. Every other
// label is text.
var figureLabels = map[string]bool{
	"figure":  true,
	"picture": true,
	"image":   true,
	"chart":   true,
	"diagram": true,
}

// Config holds configuration for the remote classifier.
type Config struct {
	// BaseURL is the layout service base URL (required).
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// RateLimit throttles requests to the service.
	RateLimit ratelimit.Config
}

// Classifier calls the layout service for each page.
type Classifier struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.Limiter
}

type layoutRequest struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type layoutResponse struct {
	Regions []struct {
		Box   []float64 `json:"box"`
		Label string    `json:"label"`
		Score float64   `json:"score"`
	} `json:"regions"`
}

// New creates a remote classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: layout: base URL is required", domain.ErrInvalidInput)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Classifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: ratelimit.New(cfg.RateLimit),
	}, nil
}

// Name identifies the classifier in logs.
func (c *Classifier) Name() string {
	return "remote"
}

// Classify sends the page image to the service and returns raw candidates.
func (c *Classifier) Classify(ctx context.Context, page domain.PageImage) ([]domain.Region, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(layoutRequest{
		Image:  base64.StdEncoding.EncodeToString(page.Data),
		Width:  page.Width,
		Height: page.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+layoutPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: layout: send request: %v", domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: layout: read response: %v", domain.ErrTransientIO, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.Backoff(ratelimit.RetryAfter(resp.Header, time.Now()))
		return nil, fmt.Errorf("%w: layout (status %d)", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: layout (status %d): %s", domain.ErrTransientIO, resp.StatusCode, data)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: layout (status %d): %s", domain.ErrClassification, resp.StatusCode, data)
	}

	var out layoutResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: layout: decode response: %v", domain.ErrClassification, err)
	}

	regions := make([]domain.Region, 0, len(out.Regions))
	for i, r := range out.Regions {
		if len(r.Box) != 4 {
			return nil, fmt.Errorf("%w: layout: region %d has %d box values", domain.ErrClassification, i, len(r.Box))
		}
		label := domain.LabelText
		if figureLabels[strings.ToLower(r.Label)] {
			label = domain.LabelFigure
		}
		regions = append(regions, domain.Region{
			DocumentID: page.DocumentID,
			PageNumber: page.PageNumber,
			Index:      i,
			Box: domain.BoundingBox{
				X: int(r.Box[0]),
				Y: int(r.Box[1]),
				W: int(r.Box[2]),
				H: int(r.Box[3]),
			},
			Label:      label,
			Confidence: r.Score,
		})
	}
	return regions, nil
}
