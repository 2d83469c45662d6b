package orchestrator

import "errors"

// Registration errors. These are the only failures surfaced to callers as
// error returns; everything below the registration boundary is absorbed
// into service state.
var (
	// ErrMissingServiceID indicates an empty ServiceConfig.ID.
	ErrMissingServiceID = errors.New("orchestrator: service id is required")

	// ErrNoProbeTarget indicates neither HealthURL nor Host/Port is set.
	ErrNoProbeTarget = errors.New("orchestrator: no probe target configured")

	// ErrBothProbeTargets indicates both HealthURL and Host/Port are set.
	ErrBothProbeTargets = errors.New("orchestrator: both http and tcp probe targets configured")

	// ErrDuplicateService indicates the service id is already registered.
	ErrDuplicateService = errors.New("orchestrator: service already registered")

	// ErrUnknownService indicates the service id is not registered.
	ErrUnknownService = errors.New("orchestrator: unknown service")
)

// Snapshot errors.
var (
	// ErrSnapshotNotFound indicates no recovery snapshot exists for the
	// service.
	ErrSnapshotNotFound = errors.New("orchestrator: recovery snapshot not found")
)
