// Package resilience keeps the suggestion pipeline responsive when an
// upstream provider misbehaves.
//
// [CircuitBreaker] stops calling a provider after repeated failures and
// probes it again after a cool-off. [FallbackGroup] puts a breaker in front
// of each of several interchangeable providers and walks them in order, so a
// failing primary is skipped in favour of a healthy fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successful probes close the breaker; any failed probe re-opens it.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero
// values select the defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of concurrent probes allowed and the
	// number of successful probes needed to close. Default: 3.
	HalfOpenMax int

	// IsFailure classifies errors returned by the protected call. Errors it
	// rejects pass through without affecting the breaker. Default: every
	// error except context cancellation and deadline expiry.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the mutex
	// released.
	OnStateChange func(name string, from, to State)

	// Now replaces the clock. Default: time.Now.
	Now func() time.Time
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker is a three-state breaker. Use [NewCircuitBreaker].
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int       // consecutive failures while closed
	openedAt    time.Time // time of the failure that opened the breaker
	probes      int       // probes admitted in the current half-open phase
	probeWins   int       // successful probes in the current half-open phase
	transitions []State   // pending notifications, drained outside the lock
}

// NewCircuitBreaker returns a closed breaker.
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
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker rejects the call, in which case it
// returns [ErrCircuitOpen] without calling fn. fn's error is returned as is.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.flush()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.flush()

	// A probe admitted in an earlier half-open phase no longer counts.
	if probe && cb.state != StateHalfOpen {
		probe = false
	}

	switch {
	case err != nil && !cb.cfg.IsFailure(err):
		if probe {
			cb.probes--
		}
	case err != nil:
		cb.failures++
		if probe || (cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures) {
			cb.openedAt = cb.cfg.Now()
			cb.moveTo(StateOpen)
		}
	case probe:
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenMax {
			cb.moveTo(StateClosed)
		}
	case cb.state == StateClosed:
		cb.failures = 0
	}
}

// moveTo changes state and resets the per-state counters. Must be called
// with cb.mu held.
func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.probes, cb.probeWins = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}
	cb.transitions = append(cb.transitions, from, to)

	log := slog.With("name", cb.cfg.Name, "from", from.String(), "to", to.String())
	if to == StateOpen {
		log.Warn("resilience: circuit breaker opened", "consecutive_failures", cb.failures)
	} else {
		log.Info("resilience: circuit breaker state changed")
	}
}

// flush unlocks cb.mu and then reports queued transitions.
func (cb *CircuitBreaker) flush() {
	pending := cb.transitions
	cb.transitions = nil
	cb.mu.Unlock()
	if cb.cfg.OnStateChange == nil {
		return
	}
	for i := 0; i+1 < len(pending); i += 2 {
		cb.cfg.OnStateChange(cb.cfg.Name, pending[i], pending[i+1])
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.flush()
	cb.moveTo(StateClosed)
	cb.failures = 0
}
