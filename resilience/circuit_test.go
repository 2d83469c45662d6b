package resilience

import (
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 30*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 30s", cb.config.RecoveryTimeout)
	}
	if cb.config.HalfOpenMaxCalls != 3 {
		t.Errorf("HalfOpenMaxCalls = %d, want 3", cb.config.HalfOpenMaxCalls)
	}
	if cb.State() != StateClosed {
		t.Errorf("Initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensExactlyAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	// First 2 failures must not open.
	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Errorf("After %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	// Third failure opens.
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("After 3 failures, state = %v, want open", cb.State())
	}

	// While open, probes are rejected.
	if cb.Allow() {
		t.Error("Allow() while open = true, want false")
	}
}

func TestCircuitBreaker_ClosedAllows(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("Allow() while closed = false on call %d", i)
		}
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	// Before the timeout elapses, probes stay blocked.
	if cb.Allow() {
		t.Error("Allow() before recovery timeout = true, want false")
	}

	time.Sleep(20 * time.Millisecond)

	// First call after elapsing transitions to half-open and is granted.
	if !cb.Allow() {
		t.Error("Allow() after recovery timeout = false, want true")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("State = %v, want half_open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenCallBudget(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	granted := 0
	for i := 0; i < 10; i++ {
		if cb.Allow() {
			granted++
		}
	}

	if granted != 3 {
		t.Errorf("Granted half-open calls = %d, want 3", granted)
	}
}

func TestCircuitBreaker_HalfOpenSingleFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
	})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Allow() after recovery timeout = false, want true")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("State after half-open failure = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("Allow() after reopening = true, want false")
	}
}

func TestCircuitBreaker_HalfOpenClosesAfterTwoSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
	})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Allow() = false, want true")
	}
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Errorf("After one success, state = %v, want half_open", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("After two successes, state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("After reset, state = %v, want closed", cb.State())
	}

	snap := cb.Snapshot()
	if snap.Failures != 0 || snap.Successes != 0 || snap.HalfOpenCalls != 0 {
		t.Errorf("After reset, snapshot = %+v, want zeroed counters", snap)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []struct{ from, to State }

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, struct{ from, to State }{from, to})
			mu.Unlock()
		},
	})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	_ = cb.Allow()
	cb.RecordSuccess()
	cb.RecordSuccess()

	mu.Lock()
	defer mu.Unlock()

	want := []struct{ from, to State }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("Transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 5})

	cb.RecordFailure()
	cb.RecordFailure()

	snap := cb.Snapshot()
	if snap.State != StateClosed {
		t.Errorf("Snapshot.State = %v, want closed", snap.State)
	}
	if snap.Failures != 2 {
		t.Errorf("Snapshot.Failures = %d, want 2", snap.Failures)
	}
	if snap.LastFailure.IsZero() {
		t.Error("Snapshot.LastFailure should be set")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
