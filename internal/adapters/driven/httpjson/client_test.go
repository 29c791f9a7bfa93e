package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		Name:     "test",
		BaseURL:  srv.URL + "/",
		Header:   http.Header{"Authorization": {"Bearer k"}},
		Rejected: domain.ErrEmbedding,
	})
}

func TestClient_Post(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["say"]})
	})

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, c.Post(context.Background(), "/v1/echo", map[string]string{"say": "hi"}, &out))
	assert.Equal(t, "hi", out.Echo)
}

func TestClient_GetDiscardsBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("not json"))
	})

	assert.NoError(t, c.Get(context.Background(), "/models", nil))
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, domain.ErrTransientIO},
		{"rejected", http.StatusBadRequest, domain.ErrEmbedding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			err := c.Get(context.Background(), "/x", nil)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsStatus(err, tt.status))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_RateLimitedBacksOff(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	require.Error(t, c.Get(context.Background(), "/x", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, "/x", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BadJSON(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{"))
	})

	var out map[string]any
	err := c.Get(context.Background(), "/x", &out)

	assert.ErrorIs(t, err, domain.ErrTransientIO)
}

func TestClient_Unreachable(t *testing.T) {
	c := New(Config{Name: "test", BaseURL: "http://127.0.0.1:1"})

	err := c.Get(context.Background(), "/x", nil)

	assert.ErrorIs(t, err, domain.ErrTransientIO)
}

func TestClient_Cancelled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Get(ctx, "/x", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTransientIO)
}

func TestNew_DefaultRejection(t *testing.T) {
	c := New(Config{Name: "test"})
	err := c.statusError(http.StatusNotFound, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.ErrInvalidInput.Error()+": test (status 404)", err.Error())
}
