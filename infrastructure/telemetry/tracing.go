package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-handoff/internal/ports"
)

// InstrumentationName identifies spans produced by this module.
const InstrumentationName = "github.com/ahrav/go-handoff"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(InstrumentationName) }

// Operation is one traced and timed unit of work.
type Operation struct {
	name    string
	span    trace.Span
	metrics ports.MetricsCollector
	start   time.Time
}

// StartOperation opens a span named name and starts the latency clock.
// metrics may be nil.
func StartOperation(
	ctx context.Context,
	tracer trace.Tracer,
	metrics ports.MetricsCollector,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, *Operation) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Operation{name: name, span: span, metrics: metrics, start: time.Now()}
}

// SetAttributes annotates the span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) { o.span.SetAttributes(attrs...) }

// AddEvent records a named event on the span.
func (o *Operation) AddEvent(name string, attrs ...attribute.KeyValue) {
	o.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End closes the span, marking it failed when err is non-nil, and records
// the operation latency with a matching status label.
func (o *Operation) End(err error) {
	defer o.span.End()

	status := "success"
	if err != nil {
		status = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}

	if o.metrics != nil {
		o.metrics.RecordLatency(o.name, time.Since(o.start), map[string]string{"status": status})
	}
}
