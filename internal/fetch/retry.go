package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alertgroups/internal/config"
	"alertgroups/internal/domain"
	"alertgroups/internal/permanent"
)

// Retrying wraps a Fetcher with exponential backoff inside one poll cycle.
type Retrying struct {
	next   Fetcher
	policy config.RetryConfig
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// WithRetry decorates next with the source retry policy.
// Params: wrapped fetcher, retry policy, and logger for attempt failures.
// Returns: fetcher that retries transport and 5xx failures.
func WithRetry(next Fetcher, policy config.RetryConfig, logger *slog.Logger) *Retrying {
	return &Retrying{next: next, policy: policy, logger: logger, sleep: sleepContext}
}

// Fetch runs the wrapped fetcher until success, a permanent error, or the attempt limit.
// Params: ctx cancels both in-flight requests and backoff waits.
// Returns: groups from the first successful attempt or the last error.
func (r *Retrying) Fetch(ctx context.Context) ([]domain.RawGroup, error) {
	attempts := r.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.policy.Initial()
	ceiling := r.policy.Max()

	var lastErr error
	for attempt := 1; ; attempt++ {
		groups, err := r.next.Fetch(ctx)
		if err == nil {
			if attempt > 1 && r.logger != nil {
				r.logger.Info("fetch recovered after retries", "attempt", attempt)
			}
			return groups, nil
		}
		lastErr = err
		if permanent.Is(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("failed after %d attempts: %w", attempt, lastErr)
		}
		if r.logger != nil {
			r.logger.Debug("fetch attempt failed", "attempt", attempt, "backoff", backoff.String(), "error", err.Error())
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, lastErr
		}
		backoff *= 2
		if ceiling > 0 && backoff > ceiling {
			backoff = ceiling
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
