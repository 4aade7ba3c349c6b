package redis

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the series circuit breaker, exported as a gauge.
type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
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

// ErrCircuitOpen is returned without calling redis while the breaker is open
// or while a half-open probe is in flight.
var ErrCircuitOpen = errors.New("series circuit breaker is open")

// CircuitBreaker guards the redis series. It opens after maxFailures
// consecutive failures and rejects writes for resetTimeout. After that, a
// single probe write decides whether it closes or reopens.
//
// Cancellation of the caller's context is not a redis failure and leaves the
// failure count untouched.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	probing      bool
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	now          func() time.Time

	// OnStateChange runs on every transition with the lock held (optional).
	OnStateChange func(from, to State)
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker rejects it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok := cb.acquire()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.release(probe, err)
	return err
}

func (cb *CircuitBreaker) acquire() (probe, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, false
		}
		cb.transition(StateHalfOpen)
	}
	if cb.probing {
		return false, false
	}
	cb.probing = true
	return true, true
}

func (cb *CircuitBreaker) release(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}
	switch {
	case err == nil:
		cb.failures = 0
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// a cancelled probe leaves the breaker half-open for the next caller
	default:
		cb.failures++
		if probe || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			if cb.state != StateOpen {
				cb.transition(StateOpen)
			}
		}
	}
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Remaining is how long an open breaker keeps rejecting writes; zero otherwise.
func (cb *CircuitBreaker) Remaining() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	if d := cb.resetTimeout - cb.now().Sub(cb.openedAt); d > 0 {
		return d
	}
	return 0
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
