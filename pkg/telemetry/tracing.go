package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "stressforge.io/harness-go"
)

// StartTracing opens a span for a campaign phase and returns the derived
// context alongside it; callers must End the span.
func StartTracing(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName)
}
