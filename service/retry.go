// ABOUTME: Bounded retry helper with exponential backoff used around downloads and sink sends
// ABOUTME: Retry policy lives here, one level above the drivers

package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryConfig defines retry behavior for an operation.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// withRetry runs fn up to MaxRetries+1 times with exponential backoff between
// attempts. Context cancellation aborts the wait.
func withRetry(ctx context.Context, logger *slog.Logger, label string, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
			logger.Info("Retrying operation",
				"operation", label,
				"attempt", attempt,
				"delay", delay,
				"last_error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%s failed after %d retries: %w", label, cfg.MaxRetries, lastErr)
}
