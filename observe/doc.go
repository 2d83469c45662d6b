// Package observe provides observability primitives for service supervision.
//
// It is a pure instrumentation library: no probing, no scheduling, no I/O
// beyond exporter setup. Consumers wire the observer's logger, metrics, and
// tracer into the orchestrator.
package observe
