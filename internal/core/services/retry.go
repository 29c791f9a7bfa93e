package services

import (
	"context"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// sleepFunc waits for d or until ctx is done. Replaced in tests.
type sleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retrier runs a unit of work under a RetryPolicy.
type retrier struct {
	sleep sleepFunc
}

// do calls op until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. Each attempt gets its own timeout.
// It returns the number of retries performed along with the last error.
func (r retrier) do(ctx context.Context, policy domain.RetryPolicy, op func(ctx context.Context) error) (int, error) {
	sleep := r.sleep
	if sleep == nil {
		sleep = contextSleep
	}

	var err error
	retries := 0
	for attempt := 1; attempt <= policy.Attempts(); attempt++ {
		if attempt > 1 {
			if serr := sleep(ctx, policy.Delay(attempt-1)); serr != nil {
				return retries, serr
			}
			retries++
		}

		err = runAttempt(ctx, policy.Timeout, op)
		if err == nil {
			return retries, nil
		}
		if ctx.Err() != nil {
			return retries, ctx.Err()
		}
		if !domain.IsRetryable(err) {
			return retries, err
		}
	}
	return retries, err
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
