package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CheckMeta contains metadata about a supervised service for telemetry purposes.
type CheckMeta struct {
	ServiceID string // Unique service identifier (required)
	Name      string // Human-readable service name (optional)
	Mode      string // Probe transport: "http" or "tcp" (optional)
	Critical  bool   // Whether the service is marked critical
}

// SpanName returns the deterministic span name for a check of this service.
// Format: svc.check.<service_id>
func (m CheckMeta) SpanName() string {
	return "svc.check." + m.ServiceID
}

// Tracer wraps OpenTelemetry tracing with health-check span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for one health check.
	StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with service metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("service.id", meta.ServiceID),
		attribute.Bool("check.error", false), // Updated in EndSpan if error
	}

	if meta.Name != "" {
		attrs = append(attrs, attribute.String("service.name", meta.Name))
	}
	if meta.Mode != "" {
		attrs = append(attrs, attribute.String("check.mode", meta.Mode))
	}
	if meta.Critical {
		attrs = append(attrs, attribute.Bool("service.critical", true))
	}

	ctx, span := t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("check.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NewNoopTracer creates a no-op tracer.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CheckMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
