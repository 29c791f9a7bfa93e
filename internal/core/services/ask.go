package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure AskService implements the interface.
var _ driving.AskService = (*AskService)(nil)

// UnavailableMessage is returned when a question cannot be answered.
const UnavailableMessage = "Sorry, this question could not be answered right now. Please try again later."

// RejectedPrefix starts the answer text for a question that failed validation.
const RejectedPrefix = "This question cannot be asked: "

// AskService answers questions from a scope's indexed content.
type AskService struct {
	retrieval *RetrievalEngine
	composer  *AnswerComposer
}

// NewAskService creates an ask service.
func NewAskService(retrieval *RetrievalEngine, composer *AnswerComposer) *AskService {
	return &AskService{retrieval: retrieval, composer: composer}
}

// Ask retrieves context and composes an answer.
func (s *AskService) Ask(
	ctx context.Context, scope domain.Scope, question string, opts domain.AskOptions,
) (*domain.Answer, error) {
	return s.AskStream(ctx, scope, question, opts, nil)
}

// AskStream is Ask with the answer text delivered chunk by chunk.
// With a nil onChunk the answer is generated in one call.
//
// Every outcome is an Answer: a blank question or scope, a retrieval
// failure and a generation failure all come back flagged Unavailable.
func (s *AskService) AskStream(
	ctx context.Context, scope domain.Scope, question string, opts domain.AskOptions, onChunk func(string) error,
) (*domain.Answer, error) {
	if err := validateQuestion(scope, question); err != nil {
		logger.Debug("Rejected question for %s: %v", scope, err)
		return &domain.Answer{Text: RejectedPrefix + err.Error(), Unavailable: true}, nil
	}

	res, err := s.Retrieve(ctx, scope, question, domain.RetrievalOptions{
		TopK:           opts.TopK,
		UseWeb:         opts.UseWeb,
		WidenToSubject: opts.WidenToSubject,
	})
	if err != nil {
		logger.Error("Retrieval for %s failed: %v", scope, err)
		return unavailable(nil), nil
	}

	sources := sourcesOf(res.Entries)
	prompt := s.composer.ComposePrompt(question, res.Entries)

	var text string
	if onChunk == nil {
		text, err = s.composer.Generate(ctx, prompt)
	} else {
		text, err = s.composer.GenerateStream(ctx, prompt, onChunk)
	}
	if err != nil {
		logger.Error("Generation for %s failed: %v", scope, err)
		return unavailable(sources), nil
	}
	return &domain.Answer{Text: text, Sources: sources}, nil
}

// Retrieve returns the context Ask would use without calling the model.
func (s *AskService) Retrieve(
	ctx context.Context, scope domain.Scope, question string, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	if err := validateQuestion(scope, question); err != nil {
		return nil, err
	}
	return s.retrieval.AnswerContext(ctx, question, scope, opts)
}

func validateQuestion(scope domain.Scope, question string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	return nil
}

func unavailable(sources []domain.Source) *domain.Answer {
	return &domain.Answer{Text: UnavailableMessage, Sources: sources, Unavailable: true}
}

// sourcesOf lists the attribution of context entries in prompt order.
func sourcesOf(entries []domain.ContextEntry) []domain.Source {
	ordered := OrderEntries(entries)
	out := make([]domain.Source, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, domain.Source{
			Kind:       e.Kind,
			DocumentID: e.DocumentID,
			ChunkID:    e.ChunkID,
			PageNumber: e.PageNumber,
			Title:      e.Title,
			URL:        e.URL,
			Score:      e.Score,
		})
	}
	return out
}
