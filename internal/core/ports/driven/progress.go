package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ProgressPublisher delivers job progress events to interested listeners.
// Delivery is fire-and-forget and best-effort; callers ignore errors
// beyond logging them.
type ProgressPublisher interface {
	Publish(ctx context.Context, event domain.ProgressEvent) error
}
