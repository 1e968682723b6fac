package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogger is a span exporter that logs every span ending in error.
type SpanLogger struct {
	logf func(format string, args ...any)
}

// NewSpanLogger returns a SpanLogger writing through logf, or log.Printf if nil.
func NewSpanLogger(logf func(format string, args ...any)) *SpanLogger {
	if logf == nil {
		logf = log.Printf
	}
	return &SpanLogger{logf: logf}
}

// ExportSpans implements sdktrace.SpanExporter.
func (l *SpanLogger) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		if s.Status().Code != codes.Error {
			continue
		}
		l.logf("Span %s failed after %v: %s", s.Name(), s.EndTime().Sub(s.StartTime()), s.Status().Description)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (l *SpanLogger) Shutdown(context.Context) error { return nil }
