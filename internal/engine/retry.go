package engine

import (
	"context"
	"time"
)

// ComputeBackoff calculates the delay before the next dispatch attempt:
// the base delay doubles with every retry (base, 2*base, 4*base, ...).
// attempt is zero-based: the delay before attempt n+1 after attempt n failed.
func ComputeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// WaitForBackoff sleeps for the computed backoff duration or returns early if
// the context is cancelled. Returns an error if the context was cancelled
// during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
