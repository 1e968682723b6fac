package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordOperation(_ context.Context, _ string, _ time.Duration, _ error) {}

func (NoopMetrics) RecordEvaluation(_ context.Context, _ int64, _ bool) {}

func (NoopMetrics) RecordCombine(_ context.Context, _ int, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

// StartSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSpan(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
