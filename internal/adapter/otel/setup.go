// Package otel provides OpenTelemetry instrumentation for the engine.
// Tracing setup is a stub; an OTLP exporter can be wired in later without
// touching call sites, which go through the global tracer.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function until an exporter is configured.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel tracing disabled, no exporter configured", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
