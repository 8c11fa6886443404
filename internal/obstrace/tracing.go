// Package obstrace wraps OpenTelemetry span creation for daqd's RPC handlers
// and long-lived component loops. The daemon keeps a single process-wide
// TracerProvider; ExtractIDs feeds trace/span correlation into internal/obslog,
// matching the role engine/internal/telemetry/tracing plays for the teacher,
// but against the real go.opentelemetry.io/otel/trace API rather than a
// hand-rolled span type.
package obstrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/easternanemone/rust-daq-sub009"

// NewProvider builds a process-wide TracerProvider. sampleRatio is the
// fraction of root spans sampled (1.0 = always, 0.0 = never); child spans
// always follow their parent's sampling decision.
func NewProvider(serviceName string, sampleRatio float64) *sdktrace.TracerProvider {
	res, _ := resource.New(context.Background(), resource.WithAttributes())
	_ = res
	sampler := sdktrace.TraceIDRatioBased(sampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer from the global TracerProvider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationName
	}
	return otel.Tracer(name)
}

// StartSpan starts a span named for an RPC method or component loop.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, spanName, opts...)
}

// ExtractIDs returns the hex trace id and span id of the active span in ctx,
// or two empty strings if ctx carries no valid span context.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
