package langchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// fakeClient embeds a text as (length, first byte).
type fakeClient struct {
	calls [][]string
	err   error
	short bool
}

func (c *fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		var first float32
		if t != "" {
			first = float32(t[0])
		}
		out = append(out, []float32{float32(len(t)), first})
	}
	if c.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Provider: ProviderOllama})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(Config{Provider: "cohere", Model: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbeddingService_BatchMatchesSingle(t *testing.T) {
	client := &fakeClient{}
	s, err := NewWithClient(client, Config{Model: "fake", BatchSize: 2})
	require.NoError(t, err)

	texts := []string{"alpha\nbeta", "gamma", "delta"}
	batch, err := s.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Len(t, client.calls, 2, "batched by BatchSize")

	for i, text := range texts {
		single, err := s.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, batch[i], single)
	}
	assert.Equal(t, "alpha\nbeta", client.calls[0][0], "newlines kept")
}

func TestEmbeddingService_LearnsDimensions(t *testing.T) {
	s, err := NewWithClient(&fakeClient{}, Config{Model: "fake"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Dimensions())

	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, 2, s.Dimensions())
	assert.Equal(t, "fake", s.ModelName())
}

func TestEmbeddingService_Errors(t *testing.T) {
	s, err := NewWithClient(&fakeClient{err: assert.AnError}, Config{Model: "fake"})
	require.NoError(t, err)
	_, err = s.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrEmbeddingUnavailable)

	s, err = NewWithClient(&fakeClient{short: true}, Config{Model: "fake"})
	require.NoError(t, err)
	_, err = s.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestEmbeddingService_Empty(t *testing.T) {
	s, err := NewWithClient(&fakeClient{}, Config{Model: "fake"})
	require.NoError(t, err)
	vecs, err := s.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
