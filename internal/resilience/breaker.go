// Package resilience provides reliability patterns for calls to external
// backends (issue trackers, inference providers).
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a circuit breaker guarding an external dependency. After
// threshold consecutive failures it opens and rejects calls outright until
// cooldown elapses, then lets a single probe call through (half-open). A
// successful probe closes the circuit; a failed one reopens it.
type Breaker struct {
	mu        sync.Mutex
	state     state
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	clock     func() time.Time // for testing
}

// NewBreaker creates a Breaker that opens after threshold consecutive
// failures and stays open for cooldown before probing again.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without invoking fn. The error from fn is returned as-is.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(err)
	return err
}

// admit reports whether a call may proceed, moving open to half-open once
// the cooldown has elapsed.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if b.clock().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
	}
	return true
}

// record updates breaker state after a call. Must be called with b.mu held.
func (b *Breaker) record(err error) {
	if err == nil {
		b.failures = 0
		b.state = stateClosed
		return
	}
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.clock()
	}
}
