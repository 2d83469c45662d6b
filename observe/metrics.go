package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records health-check and state-machine metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCheck records one completed health check with duration and
	// error status.
	RecordCheck(ctx context.Context, meta CheckMeta, duration time.Duration, err error)

	// RecordTransition records a service state transition.
	RecordTransition(ctx context.Context, serviceID, from, to string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	checkCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	transitions  metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	checkCount, err := meter.Int64Counter(
		"svc.check.total",
		metric.WithDescription("Total number of health checks performed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"svc.check.errors",
		metric.WithDescription("Total number of failed health checks"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"svc.check.duration_ms",
		metric.WithDescription("Health check duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"svc.state.transitions",
		metric.WithDescription("Total number of service state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		checkCount:   checkCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		transitions:  transitions,
	}, nil
}

// RecordCheck records metrics for one completed health check.
func (m *metricsImpl) RecordCheck(ctx context.Context, meta CheckMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.id", meta.ServiceID),
	}
	if meta.Mode != "" {
		attrs = append(attrs, attribute.String("check.mode", meta.Mode))
	}

	opt := metric.WithAttributes(attrs...)

	m.checkCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

// RecordTransition records one service state transition.
func (m *metricsImpl) RecordTransition(ctx context.Context, serviceID, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service.id", serviceID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// NoopMetrics returns a metrics implementation that does nothing.
func NoopMetrics() Metrics {
	return &noopMetrics{}
}

type noopMetrics struct{}

func (m *noopMetrics) RecordCheck(ctx context.Context, meta CheckMeta, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordTransition(ctx context.Context, serviceID, from, to string) {}
