package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("down")
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Retry() error = %v, want wrapped %v", err, sentinel)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, Backoff: time.Minute}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestKeyRingRotation(t *testing.T) {
	t.Parallel()

	ring, err := NewKeyRing([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewKeyRing() error = %v", err)
	}

	if got := ring.Current(); got != "a" {
		t.Errorf("Current() = %q, want %q", got, "a")
	}
	if got := ring.Rotate(); got != "b" {
		t.Errorf("Rotate() = %q, want %q", got, "b")
	}
	if got := ring.Rotate(); got != "c" {
		t.Errorf("Rotate() = %q, want %q", got, "c")
	}
	if got := ring.Rotate(); got != "a" {
		t.Errorf("Rotate() = %q, want wrap to %q", got, "a")
	}
}

func TestKeyRingRequiresKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewKeyRing(nil); err == nil {
		t.Fatal("NewKeyRing(nil) error = nil, want error")
	}
}
