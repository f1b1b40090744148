package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// slogExporter writes each finished span as one log record.
type slogExporter struct {
	logger *slog.Logger
}

func (e slogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.logger.LogAttrs(ctx, slog.LevelInfo, "trace", slog.Group("otel", args...))
	}
	return nil
}

func (e slogExporter) Shutdown(context.Context) error { return nil }

// setupTracing installs a global tracer provider that logs spans. The
// returned function flushes and stops it.
func setupTracing(logger *slog.Logger) func() {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(slogExporter{logger: logger}))
	otel.SetTracerProvider(tp)
	return func() { _ = tp.Shutdown(context.Background()) }
}
