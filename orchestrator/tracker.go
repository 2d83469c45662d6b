package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/svcops/health"
	"github.com/jonwraymond/svcops/observe"
	"github.com/jonwraymond/svcops/resilience"
)

// tracker owns the supervision state of one service: the lifecycle state
// machine, the per-service circuit breaker, and the consecutive counters.
// All transitions flow through it under a single mutex, so observers never
// see a state that disagrees with its counters.
//
// Events are collected under the lock and emitted after it is released, so
// a slow or re-entrant handler can never stall a transition.
type tracker struct {
	cfg     ServiceConfig
	bus     *Bus
	metrics observe.Metrics

	// onUnhealthy runs once per unhealthy episode, after the
	// service_unhealthy event. The orchestrator wires it to failover and
	// recovery. Re-armed when the service returns to healthy.
	onUnhealthy func()

	mu        sync.Mutex
	status    ServiceStatus
	breaker   *resilience.CircuitBreaker
	escalated bool
}

func newTracker(cfg ServiceConfig, bus *Bus, metrics observe.Metrics) *tracker {
	if metrics == nil {
		metrics = observe.NoopMetrics()
	}
	return &tracker{
		cfg:     cfg,
		bus:     bus,
		metrics: metrics,
		status: ServiceStatus{
			ServiceID: cfg.ID,
			State:     StateStarting,
		},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
}

// allowCheck asks the circuit breaker whether a probe may run now. A denial
// is not a check outcome; it leaves all counters untouched.
func (t *tracker) allowCheck() bool {
	return t.breaker.Allow()
}

// Apply folds one probe result into the state machine.
func (t *tracker) Apply(ctx context.Context, res health.Result) {
	t.mu.Lock()

	var (
		events    []Event
		escalate  bool
		prevState = t.status.State
	)

	t.status.LastCheck = res.Timestamp
	t.status.ResponseTimeMS = float64(res.Duration) / float64(time.Millisecond)

	if res.Success() {
		events = t.applySuccess(res)
	} else {
		events, escalate = t.applyFailure(res)
	}

	newState := t.status.State
	t.mu.Unlock()

	if newState != prevState {
		t.metrics.RecordTransition(ctx, t.cfg.ID, prevState.String(), newState.String())
	}
	for _, ev := range events {
		t.bus.Emit(ctx, ev)
	}
	if escalate && t.onUnhealthy != nil {
		t.onUnhealthy()
	}
}

// applySuccess runs with t.mu held and returns events to emit after unlock.
func (t *tracker) applySuccess(res health.Result) []Event {
	t.breaker.RecordSuccess()

	t.status.ConsecutiveFailures = 0
	t.status.ConsecutiveSuccesses++
	t.status.LastHealthy = res.Timestamp
	t.status.LastError = ""

	switch t.status.State {
	case StateStarting:
		// The first passing check brings a fresh service up.
		t.toHealthy(res.Timestamp)
		return []Event{{Type: EventServiceStarted, ServiceID: t.cfg.ID}}

	case StateDegraded, StateUnhealthy, StateRecovering:
		if t.status.ConsecutiveSuccesses >= t.cfg.RecoveryThreshold {
			prev := t.status.State
			t.toHealthy(res.Timestamp)
			return []Event{{Type: EventServiceRecovered, ServiceID: t.cfg.ID, PrevState: prev}}
		}
	}
	return nil
}

// applyFailure runs with t.mu held. The second return value requests the
// unhealthy escalation, granted at most once per unhealthy episode.
func (t *tracker) applyFailure(res health.Result) ([]Event, bool) {
	t.breaker.RecordFailure()

	t.status.ConsecutiveSuccesses = 0
	t.status.ConsecutiveFailures++
	t.status.LastFailure = res.Timestamp
	t.status.LastError = res.Diagnostic()

	switch t.status.State {
	case StateStarting, StateHealthy, StateDegraded, StateUnhealthy:
		// The unhealthy event re-fires on every failing check at or past
		// the threshold; only the escalation is once per episode.
		if t.status.ConsecutiveFailures >= t.cfg.FailureThreshold {
			t.status.State = StateUnhealthy
			escalate := !t.escalated
			t.escalated = true
			ev := Event{Type: EventServiceUnhealthy, ServiceID: t.cfg.ID, Error: t.status.LastError}
			return []Event{ev}, escalate
		}
		if t.status.ConsecutiveFailures >= t.cfg.degradedThreshold() && t.status.State != StateDegraded {
			t.status.State = StateDegraded
			ev := Event{Type: EventServiceDegraded, ServiceID: t.cfg.ID, Error: t.status.LastError}
			return []Event{ev}, false
		}
	}
	// Recovering failures only feed the counters; the recovery loop owns
	// escalation from here.
	return nil, false
}

// toHealthy runs with t.mu held. The consecutive-success counter keeps
// running through the transition; only a failure resets it.
func (t *tracker) toHealthy(now time.Time) {
	t.status.State = StateHealthy
	t.status.RecoveryAttempts = 0
	t.status.UptimeStart = now
	t.escalated = false
}

// setRecovering moves the service into the recovering state. It reports
// false when the service is already recovering or is no longer supervised,
// which makes recovery single-flight.
func (t *tracker) setRecovering(ctx context.Context) bool {
	t.mu.Lock()
	prev := t.status.State
	switch prev {
	case StateRecovering, StateFailed, StateStopped:
		t.mu.Unlock()
		return false
	}
	t.status.State = StateRecovering
	t.status.RecoveryAttempts = 0
	t.status.ConsecutiveSuccesses = 0
	t.mu.Unlock()

	t.metrics.RecordTransition(ctx, t.cfg.ID, prev.String(), StateRecovering.String())
	return true
}

func (t *tracker) setRecoveryAttempt(n int) {
	t.mu.Lock()
	t.status.RecoveryAttempts = n
	t.mu.Unlock()
}

// setFailed marks the service failed after attempts recovery rounds and
// emits recovery_failed.
func (t *tracker) setFailed(ctx context.Context, attempts int) {
	t.mu.Lock()
	prev := t.status.State
	t.status.State = StateFailed
	t.status.RecoveryAttempts = attempts
	t.mu.Unlock()

	t.metrics.RecordTransition(ctx, t.cfg.ID, prev.String(), StateFailed.String())
	t.bus.Emit(ctx, Event{Type: EventRecoveryFailed, ServiceID: t.cfg.ID, Attempts: attempts})
}

// setStopped marks the service stopped. Terminal and silent.
func (t *tracker) setStopped() {
	t.mu.Lock()
	t.status.State = StateStopped
	t.mu.Unlock()
}

// State returns the current lifecycle state.
func (t *tracker) State() ServiceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.State
}

// Status returns a copy of the supervision record, with the breaker state
// folded in.
func (t *tracker) Status() ServiceStatus {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	status.CircuitState = t.breaker.State()
	return status
}
