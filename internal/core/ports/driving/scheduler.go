package driving

import "context"

// Scheduler runs periodic background tasks, such as picking up jobs queued
// by another process.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error
}
