package pulse

import (
	"context"
	"time"
)

// RetryPolicy bounds how long one item may retry transient failures.
//
// Backoff is fixed: no jitter and no growth. MaxAttempts counts the first
// call, so 1 means no retries. MaxElapsed, when positive, stops retrying
// once another backoff would overrun it.
type RetryPolicy struct {
	Backoff     time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultRetryPolicy matches the provider cool-down observed in practice.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:     100 * time.Second,
		MaxAttempts: 5,
	}
}

// attempts returns the effective attempt cap. Retrying is never unbounded.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// allowRetry reports whether another attempt may start after attempt n,
// given how long the item has been running.
func (p RetryPolicy) allowRetry(n int, elapsed time.Duration) bool {
	if n >= p.attempts() {
		return false
	}
	if p.MaxElapsed > 0 && elapsed+p.Backoff > p.MaxElapsed {
		return false
	}
	return true
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
