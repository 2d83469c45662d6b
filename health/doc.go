// Package health provides bounded-time health probes for dependent services.
//
// A Checker performs one probe per invocation and reports the outcome as a
// Result. Two transports are supported:
//
//   - HTTPChecker: GET a health URL; 200 within the timeout is healthy,
//     anything else is unhealthy. No response body semantics are interpreted.
//   - TCPChecker: connect to host:port and close; a completed connect
//     within the timeout is healthy.
//
// Probe failures are never returned as Go errors past the Check boundary:
// timeouts, refusals, and transport errors are captured inside the Result
// as a short diagnostic. Elapsed time is recorded on both the success and
// the failure path.
//
//	checker := health.NewHTTPChecker(health.HTTPCheckerConfig{
//	    URL:     "http://localhost:8000/health",
//	    Timeout: 5 * time.Second,
//	})
//
//	result := checker.Check(ctx)
//	if !result.Success() {
//	    log.Printf("probe failed: %s", result.Diagnostic())
//	}
package health
