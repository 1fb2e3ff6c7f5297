package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after a number of consecutive failures and rejects
// calls for a cooldown period. After the cooldown one probe call is let
// through; its outcome decides whether the circuit closes again.
//
// This protects a struggling downstream from retry pressure: backoff spreads
// attempts out, the breaker stops making them entirely.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time

	consecutiveFailures int
	openedAt            time.Time
	open                bool
	probing             bool
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and stays open for the cooldown period
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Do runs fn unless the circuit is open. Failures count toward tripping the
// circuit; any success closes it.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return nil
	}

	if cb.now().Sub(cb.openedAt) < cb.cooldown {
		return ErrCircuitOpen
	}

	// Cooldown elapsed: one probe at a time
	if cb.probing {
		return ErrCircuitOpen
	}
	cb.probing = true
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if err == nil {
		cb.consecutiveFailures = 0
		cb.open = false
		return
	}

	cb.consecutiveFailures++
	if cb.open || cb.consecutiveFailures >= cb.failureThreshold {
		cb.open = true
		cb.openedAt = cb.now()
	}
}

// State reports whether the circuit is currently open
func (cb *CircuitBreaker) State() (open bool, consecutiveFailures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open, cb.consecutiveFailures
}
