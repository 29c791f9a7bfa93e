package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Retrieval defaults.
const (
	DefaultConfidenceThreshold = 0.35
	DefaultWebResults          = 3
	DefaultWebTimeout          = 10 * time.Second
)

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	// ConfidenceThreshold is the top score below which web search is used.
	ConfidenceThreshold float64

	// WebResults is the number of web results requested.
	WebResults int

	// WebTimeout bounds the web search call.
	WebTimeout time.Duration
}

// RetrievalEngine finds the context for a question inside a scope.
type RetrievalEngine struct {
	embedder *Embedder
	index    driven.KnowledgeIndex
	docs     driven.DocumentStore
	web      driven.WebSearch
	cfg      RetrievalConfig
}

// NewRetrievalEngine creates a retrieval engine. web may be nil.
// A zero threshold uses the default; use a negative value to disable
// confidence gating.
func NewRetrievalEngine(
	embedder *Embedder,
	index driven.KnowledgeIndex,
	docs driven.DocumentStore,
	web driven.WebSearch,
	cfg RetrievalConfig,
) *RetrievalEngine {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = DefaultWebResults
	}
	if cfg.WebTimeout <= 0 {
		cfg.WebTimeout = DefaultWebTimeout
	}
	return &RetrievalEngine{
		embedder: embedder,
		index:    index,
		docs:     docs,
		web:      web,
		cfg:      cfg,
	}
}

// Threshold returns the confidence threshold in use.
func (e *RetrievalEngine) Threshold() float64 {
	return e.cfg.ConfidenceThreshold
}

// AnswerContext embeds the question, queries the index inside scope and,
// when the top score is below the threshold or the caller asks for it,
// appends web results. An empty scope yields an empty result, not an error.
func (e *RetrievalEngine) AnswerContext(
	ctx context.Context, question string, scope domain.Scope, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	k := opts.TopK
	if k <= 0 {
		k = domain.DefaultTopK
	}

	logger.Section("Retrieval")
	vec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	var hits []domain.IndexHit
	if opts.WidenToSubject || scope.IsSubjectWide() {
		hits, err = e.index.QuerySubject(ctx, scope.Subject, vec, k)
	} else {
		hits, err = e.index.Query(ctx, scope, vec, k)
	}
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	domain.SortHits(hits)

	result := &domain.RetrievalResult{}
	for _, h := range hits {
		chunk, err := e.docs.GetChunk(ctx, h.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Debug("Skipping hit %s: chunk no longer stored", h.ChunkID)
				continue
			}
			return nil, fmt.Errorf("get chunk: %w", err)
		}
		result.Entries = append(result.Entries, domain.ContextEntry{
			Kind:       domain.SourceIndexed,
			Score:      h.Score,
			Text:       chunk.Content,
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			PageNumber: chunk.PageNumber,
			FigureIDs:  chunk.FigureIDs,
		})
	}
	if len(result.Entries) == 0 {
		// Nothing indexed for the scope yet: the composer answers with the
		// no-context prompt, so web material is not pulled in.
		logger.Debug("No chunks in %s", scope)
		return result, nil
	}
	result.Confidence = result.Entries[0].Score
	logger.Debug("Retrieved %d chunks in %s, confidence %.3f", len(result.Entries), scope, result.Confidence)

	if opts.UseWeb || result.Confidence < e.cfg.ConfidenceThreshold {
		result.WebUsed = e.web != nil
		result.Entries = append(result.Entries, e.searchWeb(ctx, question)...)
	}
	return result, nil
}

// searchWeb returns web results as context entries. Failures are logged
// and yield no entries.
func (e *RetrievalEngine) searchWeb(ctx context.Context, question string) []domain.ContextEntry {
	if e.web == nil {
		return nil
	}
	webCtx, cancel := context.WithTimeout(ctx, e.cfg.WebTimeout)
	defer cancel()

	results, err := e.web.Search(webCtx, question, e.cfg.WebResults)
	if err != nil {
		logger.Warn("Web search failed: %v", err)
		return nil
	}
	entries := make([]domain.ContextEntry, 0, len(results))
	for i, r := range results {
		entries = append(entries, domain.ContextEntry{
			Kind:  domain.SourceWeb,
			Score: float64(len(results)-i) / float64(len(results)),
			Text:  r.Snippet,
			Title: r.Title,
			URL:   r.URL,
		})
	}
	return entries
}
