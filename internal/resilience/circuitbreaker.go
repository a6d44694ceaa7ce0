// Package resilience holds the small fault-handling primitives shared by the
// cloud scoring engines: a three-state [CircuitBreaker] that sheds load from
// an endpoint that keeps failing, [Retry] for transient request errors, and
// [KeyRing] for rotating API credentials when a key gets throttled.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls. Callers treat it as "try another engine", not as a request
// failure.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout has elapsed since the trip.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls. Enough successes
	// close the breaker; a single failure trips it open again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields fall back to the
// defaults noted on each field.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines, typically the engine kind.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker open.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// admitting probes again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls admitted while half-open and is
	// also the number of successes required to close. Default 3.
	HalfOpenMax int
}

// CircuitBreaker wraps calls to an unreliable backend and stops forwarding
// them once the backend looks down, so a scoring request fails over quickly
// instead of burning its deadline on a dead endpoint.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	probes    int
	probeWins int
	trippedAt time.Time
}

// NewCircuitBreaker creates a closed breaker from cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Execute runs fn unless the breaker is rejecting calls, in which case it
// returns [ErrCircuitOpen] without invoking fn. The error from fn is passed
// through unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.observe(probe, err)
	return err
}

// admit decides whether a call may proceed, moving the breaker from open to
// half-open when the reset timeout has elapsed. The returned flag reports
// whether the call counts as a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.trippedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeWins = 0
		slog.Info("circuit breaker admitting probes", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			// Probe budget spent, verdict still pending.
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// observe folds a call outcome back into the state machine.
func (cb *CircuitBreaker) observe(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && probe:
		// One failed probe is enough evidence that the backend is still down.
		cb.trip()
		slog.Warn("circuit breaker re-opened", "name", cb.name)

	case err != nil:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failures)
		}

	case probe:
		cb.probeWins++
		if cb.probeWins >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}

	default:
		cb.failures = 0
	}
}

// trip moves the breaker to open. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.trippedAt = cb.now()
}

// State reports the breaker's state. A tripped breaker whose reset timeout has
// elapsed reports [StateHalfOpen] even though the transition itself happens on
// the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.trippedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeWins = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
