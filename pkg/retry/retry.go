// Package retry runs fallible operations a bounded number of times with a
// fixed pause between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Policy bounds how often an operation is tried.
type Policy struct {
	Attempts int
	Backoff  Strategy
	// OnRetry, when set, observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// ErrExhausted marks an operation that failed on every attempt.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn until it succeeds, attempts run out, or ctx is done.
// The returned error wraps both ErrExhausted and the last failure.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt-1, lastErr)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		if err := p.sleep(ctx, attempt); err != nil {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func (p Policy) sleep(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return nil
	}

	delay := p.Backoff.Delay(attempt)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
