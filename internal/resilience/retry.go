package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the retry loop around a single enrichment call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts. 1 disables retries.
	MaxAttempts int

	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration

	// Service and Operation label the retry log lines.
	Service   string
	Operation string
}

// DoVal calls fn until it succeeds, returns a non-transient error, the
// context ends, or MaxAttempts is reached.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == cfg.MaxAttempts {
			break
		}

		zap.L().Debug("retrying enrichment call",
			zap.String("service", cfg.Service),
			zap.String("operation", cfg.Operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(cfg.Backoff, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// backoff doubles base per completed attempt and adds up to 25% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
	return d + jitter
}
