package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
)

// RetryPolicy bounds storage calls made by the refresh pipeline.
type RetryPolicy struct {
	Attempts  int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		Timeout:   10 * time.Second,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}
}

// withRetry runs fn with a per-attempt timeout. Only transient storage
// errors are retried, and never once the parent context is done.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(policy.Attempts, 1)

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		result, err = fn(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !database.IsTransient(err) || attempt == attempts {
			break
		}

		delay := policy.BaseDelay << uint(attempt-1)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		slog.Warn("Storage call failed, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%s: %w", op, err)
		case <-time.After(delay):
		}
	}

	return result, fmt.Errorf("%s: %w", op, err)
}

// withRetryErr adapts withRetry for calls without a result.
func withRetryErr(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
