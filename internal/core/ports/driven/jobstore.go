package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// JobStore is the job repository.
type JobStore interface {
	// Get retrieves a job by ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Put creates or replaces a job. The lease fields of a stored job are
	// kept as they are.
	Put(ctx context.Context, job *domain.Job) error

	// Claim atomically gives owner the lease on a job until the given time,
	// provided the job is unowned, already owned by owner, or its lease
	// ended at or before now. It reports whether the lease is held.
	// Returns domain.ErrNotFound if the job is missing.
	Claim(ctx context.Context, id, owner string, now, until time.Time) (bool, error)

	// Release drops owner's lease on a job. A lease held by another owner
	// is left alone.
	Release(ctx context.Context, id, owner string) error

	// ListByStage returns jobs whose stage is one of stages, oldest first.
	// With no stages, every job is returned.
	ListByStage(ctx context.Context, stages ...domain.Stage) ([]domain.Job, error)

	// ListByDocument returns every job of a document, oldest first.
	ListByDocument(ctx context.Context, documentID string) ([]domain.Job, error)
}
