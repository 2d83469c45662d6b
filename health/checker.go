package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component is functioning but with issues.
	StatusDegraded
	// StatusUnhealthy indicates the component is not functioning properly.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// maxDiagnosticLen bounds the diagnostic string carried out of a probe.
const maxDiagnosticLen = 200

// Result contains the outcome of a single bounded-time probe.
type Result struct {
	// Status is the health status.
	Status Status

	// Message is a short diagnostic about the outcome.
	Message string

	// Error is the error if the probe failed.
	Error error

	// Duration is how long the probe took. Recorded on both the success
	// and the failure path.
	Duration time.Duration

	// Timestamp is when the probe was performed.
	Timestamp time.Time
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{
		Status:    StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{
		Status:    StatusUnhealthy,
		Message:   truncate(message),
		Error:     err,
		Timestamp: time.Now(),
	}
}

// WithDuration sets the duration on a result.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Success reports whether the probe succeeded.
func (r Result) Success() bool {
	return r.Status == StatusHealthy
}

// Diagnostic returns a short, bounded description of a failed probe,
// suitable for storing as a last-error string. Empty for healthy results.
func (r Result) Diagnostic() string {
	if r.Status == StatusHealthy {
		return ""
	}
	if r.Message != "" {
		return truncate(r.Message)
	}
	if r.Error != nil {
		return truncate(r.Error.Error())
	}
	return "check failed"
}

func truncate(s string) string {
	if len(s) > maxDiagnosticLen {
		return s[:maxDiagnosticLen]
	}
	return s
}

// Checker is the interface for health probes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Check must honor cancellation/deadlines and return promptly.
// - Errors: probe failures are reported inside Result, never panicked.
type Checker interface {
	// Name returns the name of this checker.
	Name() string

	// Check performs one bounded-time probe and returns the result.
	Check(ctx context.Context) Result
}

// CheckerFunc is an adapter to allow ordinary functions to be used as Checkers.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the name of this checker.
func (f *CheckerFunc) Name() string {
	return f.name
}

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result {
	return f.fn(ctx)
}
