// Package resilience provides failure-handling primitives for service
// supervision.
//
// # Circuit Breaker
//
// CircuitBreaker protects a failing dependency from wasted probes. The
// caller owns the probe itself: it asks Allow() before executing and
// reports the outcome afterwards.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    RecoveryTimeout:  30 * time.Second,
//	})
//
//	if cb.Allow() {
//	    if err := probe(ctx); err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
//
// # Backoff
//
// Schedule computes deterministic exponential delays for recovery loops:
//
//	sched := resilience.NewSchedule(5*time.Second, 2.0)
//	sched.Delay(0) // 5s
//	sched.Delay(1) // 10s
//	sched.Delay(2) // 20s
package resilience
