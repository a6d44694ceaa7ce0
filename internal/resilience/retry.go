package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultRetryMax      = 10 * time.Second
)

// RetryConfig holds tuning knobs for [Retry].
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Defaults to 3 if zero.
	MaxAttempts int

	// Backoff is the initial delay between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 500ms if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the delay. Defaults to 10s if zero.
	MaxBackoff time.Duration
}

// Retry runs fn until it succeeds, the attempt budget is exhausted, or ctx is
// done. The delay between attempts grows exponentially. The last error from fn
// is returned when all attempts fail.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := cfg.Backoff
	if delay <= 0 {
		delay = defaultRetryBackoff
	}
	maxDelay := cfg.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = defaultRetryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("resilience: %d attempts failed: %w", attempts, lastErr)
}

// KeyRing rotates through a fixed set of API credentials. Cloud engines use it
// to move past a rejected or throttled key without failing the whole request.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewKeyRing creates a KeyRing over the given keys. At least one key is
// required.
func NewKeyRing(keys []string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("resilience: key ring needs at least one key")
	}
	ring := make([]string, len(keys))
	copy(ring, keys)
	return &KeyRing{keys: ring}, nil
}

// Current returns the key currently in rotation.
func (r *KeyRing) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.next]
}

// Rotate advances to the next key and returns it. With a single key it is a
// no-op.
func (r *KeyRing) Rotate() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = (r.next + 1) % len(r.keys)
	return r.keys[r.next]
}

// Len returns the number of keys in rotation.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
