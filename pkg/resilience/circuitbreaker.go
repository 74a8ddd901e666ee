// Package resilience guards calls to remote dependencies with a circuit
// breaker and jittered exponential-backoff retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrCircuitOpen is returned without calling through while the breaker is
// open or its half-open trial requests are all in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
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
	}
	return "unknown"
}

type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests trial requests may be in flight at once.
	HalfOpenMaxRequests int
	// IsFailure classifies errors. The default ignores context
	// cancellation, which says nothing about the dependency's health.
	IsFailure func(error) bool
	Clock     clock.Clock
	// OnStateChange runs with the breaker locked and must not call back
	// into it.
	OnStateChange func(name string, state State)
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

// CircuitBreaker fails fast once a dependency keeps erroring, and lets a
// limited number of trial requests through after ResetTimeout to detect recovery.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trials   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute calls fn unless the circuit rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	state, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(state, err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.trials = 0, 0
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) admit() (State, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		wait := cb.cfg.ResetTimeout - cb.cfg.Clock.Now().Sub(cb.openedAt)
		if wait > 0 {
			return cb.state, fmt.Errorf("%w: %s, retry in %v", ErrCircuitOpen, cb.name, wait)
		}
		cb.trials = 0
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.HalfOpenMaxRequests {
			return cb.state, fmt.Errorf("%w: %s, trial requests in flight", ErrCircuitOpen, cb.name)
		}
		cb.trials++
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) record(admittedIn State, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if admittedIn == StateHalfOpen && cb.state == StateHalfOpen {
		cb.trials--
	}
	if err != nil && !cb.cfg.IsFailure(err) {
		return
	}
	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.open()
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.cfg.Clock.Now()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(s State) {
	if cb.state == s {
		return
	}
	cb.logger.Info("circuit state changed", "from", cb.state, "to", s, "consecutive_failures", cb.failures)
	cb.state = s
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, s)
	}
}
