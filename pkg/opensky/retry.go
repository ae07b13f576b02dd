package opensky

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for transient upstream failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (default: 3)
	MaxAttempts int

	// Delay is the backoff unit: attempt n waits n*Delay before the next
	// try (default: 1 second)
	Delay time.Duration
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Second,
	}
}

// RetryTransient executes a function with linear backoff retry logic.
// Only transient errors (see IsTransient) are retried; anything else is
// returned immediately. The sleep between attempts is context-aware.
//
// Example usage:
//
//	states, err := RetryTransient(ctx, DefaultRetryConfig(), func() ([]StateVector, error) {
//	    return client.fetchOnce(ctx, bbox, tm)
//	})
func RetryTransient[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt-1) * cfg.Delay):
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}
