package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// testClock replaces a breaker's time source so tests can jump past the reset
// timeout without sleeping.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *testClock) {
	cb := NewCircuitBreaker(cfg)
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb.now = clk.Now
	return cb, clk
}

func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for cb.State() == StateClosed {
		_ = cb.Execute(func() error { return errBackend })
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v after tripping, want open", got)
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "cloud-speech-a"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCircuitBreakerForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if !called {
		t.Fatal("Execute() did not invoke fn")
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v after 3 failures, want open", got)
	}

	err := cb.Execute(func() error {
		t.Fatal("fn called while breaker open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3})

	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })

	// The success cleared the streak, so two more failures must not trip it.
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after interrupted failure streak", got)
	}
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	})
	tripBreaker(t, cb)

	clk.Advance(29 * time.Second)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v before timeout, want open", got)
	}

	clk.Advance(time.Second)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v after timeout, want half-open", got)
	}
}

func TestCircuitBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	})
	tripBreaker(t, cb)
	clk.Advance(30 * time.Second)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: Execute() error = %v, want nil", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v after successful probes, want closed", got)
	}
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  3,
	})
	tripBreaker(t, cb)
	clk.Advance(30 * time.Second)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe Execute() error = %v, want %v", err, errBackend)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v after failed probe, want open", got)
	}
}

func TestCircuitBreakerRejectsBeyondProbeBudget(t *testing.T) {
	t.Parallel()

	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
	})
	tripBreaker(t, cb)
	clk.Advance(30 * time.Second)

	// Hold the single probe slot open by never letting it resolve before the
	// second call: simulate with a probe that succeeds, then a call once the
	// budget is spent but before the verdict closes the breaker.
	cb.mu.Lock()
	cb.state = StateHalfOpen
	cb.probes = cb.halfOpenMax
	cb.mu.Unlock()

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen once probe budget is spent", err)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	tripBreaker(t, cb)

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v after Reset, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() after Reset error = %v, want nil", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
