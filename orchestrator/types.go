package orchestrator

import (
	"fmt"
	"time"

	"github.com/jonwraymond/svcops/resilience"
)

// ServiceState represents the lifecycle state of a supervised service.
type ServiceState int

const (
	// StateStarting is the state of a freshly registered service that has
	// not yet passed a health check.
	StateStarting ServiceState = iota
	// StateHealthy means the service is passing health checks.
	StateHealthy
	// StateDegraded means the service is failing checks but has not yet
	// crossed its failure threshold.
	StateDegraded
	// StateUnhealthy means consecutive failures reached the threshold.
	StateUnhealthy
	// StateRecovering means a recovery loop is probing the service with
	// backoff-paced checks.
	StateRecovering
	// StateFailed means recovery attempts were exhausted. Terminal until
	// the service is re-registered.
	StateFailed
	// StateStopped means the orchestrator stopped supervising the service.
	// Terminal until the service is re-registered.
	StateStopped
)

// String returns the string representation of the state.
func (s ServiceState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServiceConfig describes one supervised service. It is created once at
// registration and never mutated afterwards.
//
// Exactly one probe target must be set: either HealthURL, or Host and Port.
type ServiceConfig struct {
	// ID uniquely identifies the service within one orchestrator. Required.
	ID string

	// Name is a human-readable name. Defaults to ID.
	Name string

	// HealthURL is the HTTP health endpoint; 200 within the timeout means
	// healthy.
	HealthURL string

	// Host and Port name a TCP probe target; a completed connect within
	// the timeout means healthy.
	Host string
	Port int

	// HealthCheckInterval is the cadence of scheduled checks.
	// Default: 30 seconds
	HealthCheckInterval time.Duration

	// HealthCheckTimeout bounds each probe.
	// Default: 5 seconds
	HealthCheckTimeout time.Duration

	// FailureThreshold is the consecutive-failure count at which the
	// service becomes unhealthy. Half of it (rounded up) marks it degraded.
	// Default: 3
	FailureThreshold int

	// RecoveryThreshold is the consecutive-success count at which a
	// degraded or recovering service becomes healthy again.
	// Default: 2
	RecoveryThreshold int

	// RetryDelay seeds the exponential backoff between recovery attempts.
	// Default: 5 seconds
	RetryDelay time.Duration

	// MaxRetries bounds recovery attempts before the service is failed.
	// Default: 3
	MaxRetries int

	// IsCritical marks the service for the critical subset of the health
	// summary. It does not change supervision behavior.
	IsCritical bool

	// FallbackServiceID names the service to fail over to when this one
	// becomes unhealthy. Optional.
	FallbackServiceID string
}

// withDefaults returns a copy of the config with defaults applied.
func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Validate checks that the config names a service and exactly one probe target.
func (c ServiceConfig) Validate() error {
	if c.ID == "" {
		return ErrMissingServiceID
	}

	hasURL := c.HealthURL != ""
	hasAddr := c.Host != "" && c.Port > 0

	if !hasURL && !hasAddr {
		return fmt.Errorf("%w: service %q", ErrNoProbeTarget, c.ID)
	}
	if hasURL && hasAddr {
		return fmt.Errorf("%w: service %q", ErrBothProbeTargets, c.ID)
	}
	return nil
}

// probeMode returns the probe transport for telemetry attributes.
func (c ServiceConfig) probeMode() string {
	if c.HealthURL != "" {
		return "http"
	}
	return "tcp"
}

// degradedThreshold is the consecutive-failure count at which a service is
// marked degraded: half the failure threshold, rounded up.
func (c ServiceConfig) degradedThreshold() int {
	return (c.FailureThreshold + 1) / 2
}

// ServiceStatus is the mutable supervision record for one service.
type ServiceStatus struct {
	ServiceID            string
	State                ServiceState
	CircuitState         resilience.State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastHealthy          time.Time
	LastFailure          time.Time
	LastError            string
	ResponseTimeMS       float64
	UptimeStart          time.Time
	RecoveryAttempts     int
}

// RecoveryState is an opaque snapshot saved at failover time so in-flight
// context can be restored after recovery. The orchestration core never
// interprets StateData, PendingTasks, or Context; producing and consuming
// their contents is the supervised service's responsibility.
type RecoveryState struct {
	ServiceID    string
	SnapshotID   string
	SavedAt      time.Time
	StateData    map[string]any
	PendingTasks []map[string]any
	Context      map[string]any
}
