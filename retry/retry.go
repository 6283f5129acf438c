// Package retry provides generic retry logic with exponential backoff for
// transient failures. It is used for idempotent facilitator calls such as
// /supported enrichment; verify and settle are at-most-once and never pass
// through here.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// WithRetry executes fn with exponential backoff, respecting context
// cancellation between attempts.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt.
		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
