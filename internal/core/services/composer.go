package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure AnswerComposer can receive custom prompts.
var _ driven.PromptStoreAware = (*AnswerComposer)(nil)

// defaultPrompts are used when no prompt store is set or a prompt is missing.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: `You answer questions about lecture material using only the context provided.
Each context entry starts with its source marker: [page N] for lecture slides, [web] for web results.
Cite the markers of the entries you rely on.
If the answer cannot be derived from the context, say that the material does not cover it. Do not make up an answer.`,

	driven.PromptAnswerUser: `Context:
%s

Question: %s`,

	driven.PromptNoContext: `No relevant context was found in the lecture material.

Question: %s

Tell the user that no relevant material was found for this question.`,
}

// ComposerConfig configures generation parameters.
type ComposerConfig struct {
	MaxTokens   int
	Temperature float64
}

// AnswerComposer assembles retrieved context into a prompt and hands it
// to the generation model.
type AnswerComposer struct {
	generator driven.Generator
	cfg       ComposerConfig

	mu      sync.RWMutex
	prompts driven.PromptStore
}

// NewAnswerComposer creates a composer. generator may be nil.
func NewAnswerComposer(generator driven.Generator, cfg ComposerConfig) *AnswerComposer {
	return &AnswerComposer{generator: generator, cfg: cfg}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (c *AnswerComposer) SetPromptStore(store driven.PromptStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = store
}

func (c *AnswerComposer) prompt(name string) string {
	c.mu.RLock()
	store := c.prompts
	c.mu.RUnlock()
	if store != nil {
		if p, err := store.Load(name); err == nil && p != "" {
			return p
		}
	}
	return defaultPrompts[name]
}

// OrderEntries returns entries with indexed chunks first, then web results,
// each group by descending score. Equal scores keep their input order.
func OrderEntries(entries []domain.ContextEntry) []domain.ContextEntry {
	out := make([]domain.ContextEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := out[i].Kind == domain.SourceWeb, out[j].Kind == domain.SourceWeb
		if wi != wj {
			return !wi
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// ComposePrompt builds the prompt payload for a question.
// The output depends only on its inputs and the loaded templates.
func (c *AnswerComposer) ComposePrompt(question string, entries []domain.ContextEntry) driven.Prompt {
	p := driven.Prompt{
		System:      c.prompt(driven.PromptAnswerSystem),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	if len(entries) == 0 {
		p.User = fmt.Sprintf(c.prompt(driven.PromptNoContext), question)
		return p
	}

	var b strings.Builder
	for i, e := range OrderEntries(entries) {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(e.Marker())
		if e.Kind == domain.SourceWeb && e.Title != "" {
			b.WriteString(" ")
			b.WriteString(e.Title)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(e.Text))
		if e.Kind == domain.SourceWeb && e.URL != "" {
			b.WriteString("\nURL: ")
			b.WriteString(e.URL)
		}
	}
	p.User = fmt.Sprintf(c.prompt(driven.PromptAnswerUser), b.String(), question)
	return p
}

// Generate hands the prompt to the generation model and returns its text unmodified.
func (c *AnswerComposer) Generate(ctx context.Context, p driven.Prompt) (string, error) {
	if c.generator == nil {
		return "", domain.ErrLLMUnavailable
	}
	return c.generator.Generate(ctx, p)
}

// GenerateStream is Generate with chunk-by-chunk delivery.
func (c *AnswerComposer) GenerateStream(ctx context.Context, p driven.Prompt, onChunk func(string) error) (string, error) {
	if c.generator == nil {
		return "", domain.ErrLLMUnavailable
	}
	return c.generator.Stream(ctx, p, onChunk)
}
