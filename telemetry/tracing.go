package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the instrumentation name of spans started here
const TracerName = "github.com/teranos/entres"

// Log field names for trace correlation
const (
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"
)

// StartSpan starts a span on the global tracer provider. Without a configured
// provider the span is a no-op.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// WithTraceFields adds the trace and span ids of ctx to log, if ctx carries a
// valid span context
func WithTraceFields(ctx context.Context, log *zap.SugaredLogger) *zap.SugaredLogger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.With(FieldTraceID, sc.TraceID().String(), FieldSpanID, sc.SpanID().String())
}
