package tasks

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Timeout: time.Second, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	semantic := errors.New("UNIQUE constraint failed")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", nil, 1, nil},
		{"recovers from bad connection", []error{driver.ErrBadConn}, 2, nil},
		{"recovers from attempt timeout", []error{context.DeadlineExceeded, context.DeadlineExceeded}, 3, nil},
		{"gives up after attempts", []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn, nil}, 3, driver.ErrBadConn},
		{"does not retry semantic errors", []error{semantic, nil}, 1, semantic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := withRetry(context.Background(), policy, "op", func(ctx context.Context) (int, error) {
				calls++
				if calls <= len(tt.errs) && tt.errs[calls-1] != nil {
					return 0, tt.errs[calls-1]
				}
				return 42, nil
			})

			if calls != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls)
			}
			if tt.wantErr == nil {
				if err != nil || got != 42 {
					t.Errorf("Expected 42, nil; got %d, %v", got, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWithRetryAppliesAttemptTimeout(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, Timeout: 20 * time.Millisecond, BaseDelay: time.Millisecond}

	calls := 0
	start := time.Now()
	err := withRetryErr(context.Background(), policy, "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected attempts to be bounded by the timeout")
	}
}

func TestWithRetryStopsWhenParentDone(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := withRetryErr(ctx, policy, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return driver.ErrBadConn
	})

	if calls != 1 {
		t.Errorf("Expected no retry after cancellation, got %d calls", calls)
	}
	if !errors.Is(err, driver.ErrBadConn) {
		t.Errorf("Expected last error to be returned, got %v", err)
	}
}
