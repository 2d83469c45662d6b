package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all probes.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before allowing a
	// half-open probe.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the max probes granted while half-open.
	// Default: 3
	HalfOpenMaxCalls int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)
}

// CircuitBreaker implements the circuit breaker pattern for health probes.
//
// Unlike an Execute-style breaker, the caller owns the probe: it asks
// Allow() before probing and reports the outcome with RecordSuccess or
// RecordFailure. This split lets one owner serialize breaker mutation
// together with its own state transitions.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCalls int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a probe may execute right now.
//
// Closed always allows. Open allows only once RecoveryTimeout has elapsed
// since the last failure, transitioning to half-open in the same call.
// Half-open allows up to HalfOpenMaxCalls probes; each grant consumes one.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenCalls++
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful probe outcome.
// Two successes while half-open close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes++

	if cb.state == StateHalfOpen && cb.successes >= 2 {
		cb.setState(StateClosed)
		cb.successes = 0
	}
}

// RecordFailure records a failed probe outcome.
// A single failure while half-open reopens the circuit immediately; while
// closed, the circuit opens once FailureThreshold consecutive failures
// accumulate.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		cb.setState(StateOpen)
	} else if cb.failures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0

	if oldState != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, StateClosed)
	}
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	if state == StateHalfOpen {
		cb.halfOpenCalls = 0
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, state)
	}
}

// Snapshot returns current circuit breaker counters.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerSnapshot{
		State:         cb.state,
		Failures:      cb.failures,
		Successes:     cb.successes,
		LastFailure:   cb.lastFailure,
		HalfOpenCalls: cb.halfOpenCalls,
	}
}

// CircuitBreakerSnapshot contains circuit breaker counters at a point in time.
type CircuitBreakerSnapshot struct {
	State         State
	Failures      int
	Successes     int
	LastFailure   time.Time
	HalfOpenCalls int
}
