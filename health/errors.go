package health

import "errors"

var (
	// ErrCheckFailed indicates a health probe failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a health probe exceeded its timeout.
	ErrCheckTimeout = errors.New("health: check timeout")
)
