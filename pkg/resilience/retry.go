package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls the retry state machine. Backoff is the exact
// sequence of delays slept between attempts; the total attempt count is
// len(Backoff)+1. Keeping the sequence as data makes retry behaviour
// reproducible in tests.
type RetryConfig struct {
	Backoff []time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Backoff: []time.Duration{
			100 * time.Millisecond,
			500 * time.Millisecond,
			2 * time.Second,
		},
	}
}

// Retry runs fn until it succeeds or the backoff sequence is exhausted:
// attempt -> (success | failure -> sleep(backoff[attempt-1]) -> attempt).
// The context aborts both in-flight waits and further attempts.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = defaultRetryConfig().Backoff
	}
	logger := slog.Default().With("component", "retry", "operation", name)
	maxAttempts := len(cfg.Backoff) + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		delay := cfg.Backoff[attempt-1]
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed for %s: %w", maxAttempts, name, lastErr)
}
