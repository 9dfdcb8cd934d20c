// Package resilience keeps note processing and chat working when a model
// backend misbehaves.
//
// [CircuitBreaker] stops calling a backend after repeated failures and lets
// a single probe through once it has cooled down. [FallbackGroup] chains a
// primary backend with configured fallbacks, each behind its own breaker;
// [LLMFallback] and [STTFallback] expose a group as a provider so the
// pipeline, the assistant and dictation never see the failover.
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
// refuses calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets one probe call through at a time.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and transition callbacks, usually the provider
	// name from the config file.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	// Default: 3.
	MaxFailures int

	// Cooldown is how long an open breaker rejects calls. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful probe calls that close a half-open
	// breaker. Default: 2.
	Probes int

	// IsFailure decides whether an error counts against the backend.
	// Default: [DefaultIsFailure].
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition, outside
	// the breaker's lock.
	OnStateChange func(name string, from, to State)

	// now is the clock; tests replace it.
	now func() time.Time
}

// DefaultIsFailure ignores cancellation, deadline expiry and
// [ErrUnsupported]. A chat turn the user abandoned or an audio request sent
// to a text-only model says nothing about the backend's health.
func DefaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrUnsupported)
}

// CircuitBreaker guards calls to one model backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // when the breaker last opened
	probing  bool      // a half-open probe is in flight
	passed   int       // successful probes since half-open
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker refuses, in which case it returns
// [ErrCircuitOpen] without calling fn. fn's error is returned as is.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// Report records err as the outcome of a call that already returned
// through [CircuitBreaker.Execute] but failed later. A nil or neutral err
// is ignored.
func (cb *CircuitBreaker) Report(err error) {
	if err == nil || !cb.cfg.IsFailure(err) {
		return
	}
	cb.settle(false, err)
}

// State reports the current state. An open breaker whose cool-down has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooled() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.passed, cb.probing = 0, 0, false
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateOpen:
		if !cb.cooled() {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.passed = 0
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probing = true
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return probe, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	failed := err != nil && cb.cfg.IsFailure(err)
	switch {
	case probe:
		cb.probing = false
		switch {
		case failed:
			cb.trip()
		case err == nil:
			cb.passed++
			if cb.passed >= cb.cfg.Probes {
				cb.state = StateClosed
				cb.failures = 0
			}
		}
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	case err == nil:
		cb.failures = 0
	}
	to, failures := cb.state, cb.failures
	cb.mu.Unlock()

	if from != to && to == StateOpen {
		slog.Warn("resilience: circuit opened", "provider", cb.cfg.Name, "failures", failures, "err", err)
	}
	cb.notify(from, to)
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.now()
	cb.passed = 0
}

// cooled reports whether the cool-down has passed. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) cooled() bool {
	return cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.Cooldown
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	slog.Debug("resilience: circuit state", "provider", cb.cfg.Name, "from", from, "to", to)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
