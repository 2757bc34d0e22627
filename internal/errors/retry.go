package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff for transient failures.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first
	// call. Zero or negative means a single attempt.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt. Values
	// below 1 fall back to 2.
	Multiplier float64

	// Jitter randomizes each wait between half and the full delay.
	Jitter bool

	// OnRetry, when set, observes each failed attempt before the next
	// one runs. The attempt number is 1-based.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits short network operations: three attempts
// with waits of 1s and 2s between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds or the attempt budget is exhausted,
// waiting with exponential backoff between attempts. Context
// cancellation aborts promptly, including mid-wait.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for operations that produce a value. On
// exhaustion it returns the zero value and the last error, wrapped
// with the attempt count.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if attempt == attempts {
			break
		}
		// A cancellation that surfaced through fn should not burn
		// another attempt.
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
