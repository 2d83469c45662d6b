// Package orchestrator supervises a fleet of services: it polls their
// health endpoints on per-service schedules, runs a lifecycle state
// machine per service, and drives failover and backoff-paced recovery
// when a service crosses its failure threshold.
//
// # Lifecycle
//
// A registered service starts in starting and moves to healthy on its
// first passing check. Consecutive failures degrade it at half the
// failure threshold and mark it unhealthy at the threshold. A service
// with a configured fallback then fails over and enters a recovery
// loop, which probes with exponentially growing delays; exhausting the
// retry budget parks it in failed until it is re-registered. A service
// without a fallback stays under scheduled checks indefinitely and
// returns to healthy after a run of passing checks.
//
// # Usage
//
//	orch := orchestrator.New(orchestrator.WithLogger(log))
//
//	err := orch.Register(orchestrator.ServiceConfig{
//	    ID:         "postgres",
//	    Host:       "localhost",
//	    Port:       5432,
//	    IsCritical: true,
//	})
//	if err != nil {
//	    return err
//	}
//
//	orch.On(orchestrator.EventServiceUnhealthy, func(ev orchestrator.Event) {
//	    log.Printf("%s is unhealthy: %s", ev.ServiceID, ev.Error)
//	})
//
//	if err := orch.Start(ctx); err != nil {
//	    return err
//	}
//	defer orch.Stop(context.Background())
//
// Each service is checked by its own scheduler goroutine, so one slow
// probe never delays another service's cadence. A per-service circuit
// breaker sits in front of the probes; rounds it denies leave the
// consecutive counters untouched.
package orchestrator
