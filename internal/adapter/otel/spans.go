package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "planforge"

// StartSessionSpan starts a span covering a planning run for a session.
func StartSessionSpan(ctx context.Context, sessionID, issueKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.run",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.issue_key", issueKey),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a planning run.
func StartToolCallSpan(ctx context.Context, sessionID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("toolcall.tool", tool),
		),
	)
}

// StartIngestSpan starts a span covering a background ingestion task.
func StartIngestSpan(ctx context.Context, taskID, storeID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("ingest.task_id", taskID),
			attribute.String("ingest.store_id", storeID),
		),
	)
}
