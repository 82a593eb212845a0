package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *Logger

	// Retryable, when set, stops retrying as soon as it returns false.
	Retryable func(error) bool
}

// Do executes fn with exponential back-off retry logic. The attempt count is
// bounded by MaxAttempts; a cancelled ctx ends the loop early.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func() error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(r.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if r.Logger != nil && int(n)+1 < maxAttempts {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v",
					operationName, n+1, maxAttempts, err)
			}
		}),
	}
	if r.Retryable != nil {
		opts = append(opts, retry.RetryIf(r.Retryable))
	}

	err := retry.Do(func() error {
		attempts++
		return fn()
	}, opts...)
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
	}
	return nil
}
