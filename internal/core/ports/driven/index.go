package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// KnowledgeIndex is the scope-partitioned nearest-neighbour store.
// Queries never cross scope boundaries; widening to a whole subject
// is a separate, explicit call.
type KnowledgeIndex interface {
	// Upsert stores entries, replacing any existing entry with the same chunk ID.
	Upsert(ctx context.Context, entries []domain.IndexEntry) error

	// Query returns the k nearest entries inside a lecture scope,
	// ranked by cosine similarity with ties going to the more recent document.
	Query(ctx context.Context, scope domain.Scope, vector []float32, k int) ([]domain.IndexHit, error)

	// QuerySubject is Query across every lecture of a subject.
	QuerySubject(ctx context.Context, subject string, vector []float32, k int) ([]domain.IndexHit, error)

	// Delete removes every entry of a document.
	Delete(ctx context.Context, scope domain.Scope, documentID string) error

	// DeleteScope removes every entry in a lecture or, for a subject-wide
	// scope, in the whole subject.
	DeleteScope(ctx context.Context, scope domain.Scope) error

	// Close releases resources.
	Close() error
}
