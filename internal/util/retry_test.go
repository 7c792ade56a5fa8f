package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryErrWithContext_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_PersistentFailure(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return errors.New("persistent")
	})
	if err == nil || err.Error() != "persistent" {
		t.Fatalf("expected persistent error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_MaxTriesZeroOrNegative(t *testing.T) {
	for _, n := range []int{0, -1} {
		calls := 0
		_ = RetryErrWithContext(context.Background(), n, func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		})
		if calls != 1 {
			t.Fatalf("maxTries=%d: expected 1 call, got %d", n, calls)
		}
	}
}

func TestRetryErrWithContext_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_FunctionReturnsContextError(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryErrWithBackoff_WaitsBetweenAttempts(t *testing.T) {
	var stamps []time.Time
	err := RetryErrWithBackoff(context.Background(), 3, 10*time.Millisecond, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(stamps) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(stamps))
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 20*time.Millisecond {
		t.Fatalf("expected doubled delay before third attempt, got %v", gap)
	}
}

func TestRetryErrWithBackoff_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryErrWithBackoff(ctx, 5, time.Hour, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithContext_SuccessImmediate(t *testing.T) {
	result, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %q", result)
	}
}

func TestRetryWithContext_PersistentFailure(t *testing.T) {
	result, err := RetryWithContext(context.Background(), 2, func(ctx context.Context) (int, error) {
		return 7, errors.New("persistent")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if result != 0 {
		t.Fatalf("expected zero value, got %d", result)
	}
}
