package gate

import (
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 30 * time.Second
)

// Breaker tracks remote-model availability across turns. Closed counts
// consecutive failures and allows calls; open rejects calls until the
// cooldown elapses; half-open lets exactly one probe through and its
// outcome decides the next state.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	state       string
	failures    int
	probing     bool
	lastFailure time.Time
	openedAt    time.Time
	trips       int64
	onChange    func(from, to string)
	nowFn       func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithCooldown sets how long the circuit stays open before a probe.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.cooldown = d }
}

// WithOnStateChange registers a transition hook. It runs under the
// breaker's lock and must not call back into the breaker.
func WithOnStateChange(fn func(from, to string)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a closed breaker.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		state:     StateClosed,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.threshold <= 0 {
		b.threshold = DefaultFailureThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = DefaultCooldown
	}
	return b
}

// Allow reports whether a remote call may proceed. An open circuit whose
// cooldown has elapsed moves to half-open and admits the caller as the
// probe; further half-open callers are rejected until the probe's outcome
// is recorded or released.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.nowFn().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Release returns an unused half-open probe. The gate calls it when the
// breaker allowed a call but a later check chose the fast tier, so the
// probe is not burned on a call that never happened.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// RecordSuccess feeds a successful remote call back into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.failures = 0
		b.transition(StateClosed)
	default:
		b.failures = 0
	}
}

// RecordFailure feeds a failed remote call back into the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.nowFn()

	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.trip()
		}
	case StateHalfOpen:
		b.probing = false
		b.trip()
	}
}

// trip opens the circuit and restarts the cooldown. Callers hold the lock.
func (b *Breaker) trip() {
	b.trips++
	b.openedAt = b.nowFn()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to string) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a point-in-time view for status reporting.
type BreakerStats struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Trips       int64     `json:"trips"`
	LastFailure time.Time `json:"last_failure"`
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:       b.state,
		Failures:    b.failures,
		Trips:       b.trips,
		LastFailure: b.lastFailure,
	}
}
