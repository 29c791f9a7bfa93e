package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name      string
		settings  EmbeddingSettings
		wantModel string
		wantErr   error
	}{
		{
			name:      "empty provider uses hashing",
			settings:  EmbeddingSettings{},
			wantModel: "hashing",
		},
		{
			name:      "ollama",
			settings:  EmbeddingSettings{Provider: "ollama", Model: "nomic-embed-text"},
			wantModel: "nomic-embed-text",
		},
		{
			name:      "openai",
			settings:  EmbeddingSettings{Provider: "openai", APIKey: "k", Model: "text-embedding-3-small"},
			wantModel: "text-embedding-3-small",
		},
		{
			name:     "openai without key",
			settings: EmbeddingSettings{Provider: "openai"},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:      "langchain ollama",
			settings:  EmbeddingSettings{Provider: "langchain-ollama", Model: "all-minilm", Dimensions: 384},
			wantModel: "all-minilm",
		},
		{
			name:     "unknown provider",
			settings: EmbeddingSettings{Provider: "cohere"},
			wantErr:  domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
			assert.Contains(t, svc.ModelName(), tt.wantModel)
			assert.NoError(t, svc.Close())
		})
	}
}

func TestCreateGenerator(t *testing.T) {
	gen, err := CreateGenerator(GeneratorSettings{})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = CreateGenerator(GeneratorSettings{Provider: GeneratorNone})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = CreateGenerator(GeneratorSettings{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gen.ModelName())

	gen, err = CreateGenerator(GeneratorSettings{Provider: "langchain-ollama", Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", gen.ModelName())

	_, err = CreateGenerator(GeneratorSettings{Provider: "gemini"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateAndValidateEmbeddingService_Hashing(t *testing.T) {
	svc, err := CreateAndValidateEmbeddingService(context.Background(), EmbeddingSettings{Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, svc.Dimensions())
}

func TestCreateAndValidateEmbeddingService_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := CreateAndValidateEmbeddingService(context.Background(),
		EmbeddingSettings{Provider: "ollama", BaseURL: srv.URL, Model: "m", Dimensions: 8})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestCreateAndValidateGenerator_KeepsUnreachableGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gen, err := CreateAndValidateGenerator(context.Background(),
		GeneratorSettings{Provider: "openai", APIKey: "k", BaseURL: srv.URL, Model: "m"})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.NotNil(t, gen)
}
