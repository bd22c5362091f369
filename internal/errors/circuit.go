package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Breaker.Do while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down has passed.
	BreakerOpen
	// BreakerHalfOpen lets a trial call through after the cool-down.
	BreakerHalfOpen
)

// String returns a string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling a provider that keeps failing. Fatal errors
// (bad or missing credentials) open it immediately.
type Breaker struct {
	name      string
	threshold int
	coolDown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithThreshold sets how many consecutive failures open the breaker.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCoolDown sets how long an open breaker rejects calls.
func WithCoolDown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		b.coolDown = d
	}
}

// NewBreaker creates a breaker. Defaults: 3 failures, 1 minute cool-down.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 3,
		coolDown:  time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Do runs fn unless the breaker is open. A failed trial call in the
// half-open state reopens the breaker.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.stateLocked() == BreakerOpen {
		b.mu.Unlock()
		return New(ErrCodeProviderFailed, "provider temporarily disabled after repeated failures", ErrCircuitOpen).
			WithDetail("provider", b.name)
	}
	b.mu.Unlock()

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = BreakerClosed
		return
	}
	b.failures++
	if b.stateLocked() == BreakerHalfOpen || b.failures >= b.threshold || IsFatal(err) {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}
