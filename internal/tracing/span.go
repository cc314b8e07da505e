package tracing

import (
	"context"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRunSpan starts the span covering a whole probe run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID string, target net.IP, count int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "probe run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pingtrain.run_id", runID),
			attribute.String("network.peer.address", target.String()),
			attribute.Int("pingtrain.count", count),
		),
	)
}

// StartProbeSpan starts a child span for one probe.
func StartProbeSpan(ctx context.Context, tracer trace.Tracer, seq int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "probe",
		trace.WithAttributes(attribute.Int("pingtrain.seq", seq)),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
