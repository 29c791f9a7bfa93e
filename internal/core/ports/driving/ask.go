package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// AskService answers questions grounded in a scope's indexed content.
type AskService interface {
	// Ask retrieves context and composes an answer. Model failures are
	// reported through Answer.Unavailable, not as errors. Errors are
	// returned only for invalid input.
	Ask(ctx context.Context, scope domain.Scope, question string, opts domain.AskOptions) (*domain.Answer, error)

	// AskStream is Ask with the answer text delivered chunk by chunk.
	AskStream(ctx context.Context, scope domain.Scope, question string, opts domain.AskOptions,
		onChunk func(chunk string) error) (*domain.Answer, error)

	// Retrieve returns the context Ask would use without calling the model.
	Retrieve(ctx context.Context, scope domain.Scope, question string,
		opts domain.RetrievalOptions) (*domain.RetrievalResult, error)
}
