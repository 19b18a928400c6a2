package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithContext_SuccessImmediate(t *testing.T) {
	result, err := RetryWithContext(context.Background(), 3, Backoff{}, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
}

func TestRetryWithContext_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result, err := RetryWithContext(context.Background(), 3, Backoff{Initial: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 99 {
		t.Fatalf("expected 99, got %d", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_PersistentFailure(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, Backoff{}, func(ctx context.Context) error {
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
	for _, tries := range []int{0, -2} {
		calls := 0
		err := RetryErrWithContext(context.Background(), tries, Backoff{}, func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		})
		if calls != 1 {
			t.Fatalf("expected 1 call for maxTries=%d, got %d", tries, calls)
		}
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	}
}

func TestRetryWithContext_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithContext(ctx, 5, Backoff{}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithContext_FunctionReturnsContextError(t *testing.T) {
	calls := 0
	_, err := RetryWithContext(context.Background(), 5, Backoff{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 30 * time.Millisecond}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
	for i, w := range want {
		if got := b.delay(i + 1); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
	if got := (Backoff{}).delay(3); got != 0 {
		t.Fatalf("expected zero delay, got %v", got)
	}
}
