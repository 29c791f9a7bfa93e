package domain

import "time"

// RetryPolicy bounds how often a stage retries a failed unit of work.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff lists the delays before each retry. The last entry is
	// reused once the schedule is exhausted. Empty means no delay.
	Backoff []time.Duration

	// Timeout bounds each individual attempt. Zero means no per-call timeout.
	Timeout time.Duration
}

// DefaultRetryPolicy is used for stages without explicit configuration.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Backoff:     []time.Duration{200 * time.Millisecond, time.Second, 5 * time.Second},
	Timeout:     60 * time.Second,
}

// Attempts returns the effective number of attempts.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if len(p.Backoff) == 0 || n < 1 {
		return 0
	}
	if n > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[n-1]
}
