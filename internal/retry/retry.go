// Package retry provides a bounded retry combinator for transient external
// operations: a maximum attempt count plus a per-attempt backoff function,
// independent of the I/O being retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once all attempts are spent.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	// Backoff returns the delay before the given 1-based attempt. Attempt 1
	// runs immediately; Backoff is consulted from attempt 2 on.
	Backoff func(attempt int) time.Duration
}

// Linear returns a backoff growing as attempt × unit × factor.
func Linear(unit time.Duration, factor int) func(int) time.Duration {
	if factor <= 0 {
		factor = 1
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * unit * time.Duration(factor)
	}
}

// Do runs op until it succeeds, the policy is exhausted, or the context is
// cancelled. The returned error wraps ErrExhausted together with the last
// operation error when attempts run out.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && policy.Backoff != nil {
			timer := time.NewTimer(policy.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}
