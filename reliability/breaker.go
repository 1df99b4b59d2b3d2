package reliability

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is one of the three states a CircuitBreaker can be in.
type BreakerState int

const (
	// BreakerClosed lets requests through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects every request until Cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe request through to decide
	// whether to return to BreakerClosed or back to BreakerOpen.
	BreakerHalfOpen
)

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

// ErrBreakerOpen is returned by CircuitBreaker.Do without calling fn when
// the breaker is open (or half-open and a probe is already in flight).
var ErrBreakerOpen = errors.New("reliability: circuit breaker open")

// CircuitBreaker trips after FailureThreshold consecutive failures against
// a single destination (an SCP that has stopped accepting associations, say)
// and stops attempting new operations until Cooldown has passed, at which
// point it lets one probe through before deciding whether to close again.
// There is no library in the examples this project is grounded on for this
// state machine, so it is plain mutex-guarded state, the same way
// assoc.FSM guards the association state machine by hand.
type CircuitBreaker struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open. Zero defaults to 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a
	// half-open probe. Zero defaults to 30s.
	Cooldown time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

func (b *CircuitBreaker) threshold() int {
	if b.FailureThreshold <= 0 {
		return 5
	}
	return b.FailureThreshold
}

func (b *CircuitBreaker) cooldown() time.Duration {
	if b.Cooldown <= 0 {
		return 30 * time.Second
	}
	return b.Cooldown
}

// State reports the breaker's current state, resolving BreakerOpen to
// BreakerHalfOpen if Cooldown has elapsed since it tripped.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *CircuitBreaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown() {
		return BreakerHalfOpen
	}
	return b.state
}

// Do runs fn if the breaker permits it, and records the outcome. It returns
// ErrBreakerOpen without calling fn when the breaker is open, or when it is
// half-open and a probe is already in flight.
func (b *CircuitBreaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	default: // BreakerOpen, cooldown not yet elapsed
		return false
	}
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probeInFlight
	b.probeInFlight = false

	if err == nil {
		b.failures = 0
		b.state = BreakerClosed
		return
	}

	if wasProbe {
		b.trip()
		return
	}

	b.failures++
	if b.failures >= b.threshold() {
		b.trip()
	}
}

func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.failures = b.threshold()
}

// Reset forces the breaker back to closed, discarding any recorded failures.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeInFlight = false
}
