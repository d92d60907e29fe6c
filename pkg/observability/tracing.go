package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the named sranges tracer of the global provider installed by Init.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// RecordSpanError marks span as failed with err. A nil err leaves the span untouched.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
