package connection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted is returned when every attempt failed.
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// RetryConfig configures Retry.
type RetryConfig struct {
	// Attempts is the total number of tries (minimum 1).
	Attempts int

	// Backoff spaces the attempts (zero value: DefaultBackoff()).
	Backoff Backoff

	// OnRetry is called before waiting for the next attempt (optional).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Retry calls fn until it succeeds, the attempts run out or ctx ends.
// attempt starts at 1. When every attempt fails the error wraps both
// ErrAttemptsExhausted and the last failure.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, err
		}
		if attempt == cfg.Attempts {
			break
		}

		delay := cfg.Backoff.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	if cfg.Attempts == 1 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w after %d tries: %w", ErrAttemptsExhausted, cfg.Attempts, lastErr)
}
