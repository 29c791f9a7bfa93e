package langchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// fakeModel is a scripted llms.Model.
type fakeModel struct {
	chunks []string
	reply  string
	err    error

	gotMessages []llms.MessageContent
	gotOptions  llms.CallOptions
}

func (m *fakeModel) GenerateContent(
	ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.gotMessages = msgs
	m.gotOptions = llms.CallOptions{}
	for _, o := range options {
		o(&m.gotOptions)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.gotOptions.StreamingFunc != nil {
		for _, c := range m.chunks {
			if err := m.gotOptions.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Provider: ProviderOllama})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(Config{Provider: "gemini", Model: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	g, err := New(Config{Provider: ProviderOllama, Model: "llama3.2", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", g.ModelName())
}

func TestGenerator_Generate(t *testing.T) {
	m := &fakeModel{reply: "answer"}
	g := NewWithModel(m, "fake")

	out, err := g.Generate(context.Background(), driven.Prompt{System: "sys", User: "q", MaxTokens: 10, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	require.Len(t, m.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.gotMessages[1].Role)
	assert.Equal(t, 10, m.gotOptions.MaxTokens)
	assert.InDelta(t, 0.2, m.gotOptions.Temperature, 1e-9)
}

func TestGenerator_GenerateError(t *testing.T) {
	g := NewWithModel(&fakeModel{err: assert.AnError}, "fake")
	_, err := g.Generate(context.Background(), driven.Prompt{User: "q"})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestGenerator_GenerateEmptyChoices(t *testing.T) {
	_, err := firstChoice(&llms.ContentResponse{})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestGenerator_Stream(t *testing.T) {
	g := NewWithModel(&fakeModel{chunks: []string{"a", "", "b"}, reply: "ab"}, "fake")

	var got []string
	out, err := g.Stream(context.Background(), driven.Prompt{User: "q"}, func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestGenerator_StreamWithoutProviderStreaming(t *testing.T) {
	g := NewWithModel(&fakeModel{reply: "whole"}, "fake")

	var got []string
	out, err := g.Stream(context.Background(), driven.Prompt{User: "q"}, func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "whole", out)
	assert.Equal(t, []string{"whole"}, got)
}

func TestGenerator_Ping(t *testing.T) {
	m := &fakeModel{reply: "p"}
	g := NewWithModel(m, "fake")
	require.NoError(t, g.Ping(context.Background()))
	assert.Equal(t, 1, m.gotOptions.MaxTokens)
	assert.NoError(t, g.Close())
}
