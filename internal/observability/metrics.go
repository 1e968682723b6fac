package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricOperations    = "ruleast.operations"
	MetricOperationErrs = "ruleast.operation.errors"
	MetricLatency       = "ruleast.operation.latency_ms"
	MetricEvaluations   = "ruleast.evaluations"
	MetricCombinedRules = "ruleast.combine.rules"
)

// MetricsRecorder records rule engine metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOperation records one engine operation (create, combine, eval, ...).
	RecordOperation(ctx context.Context, op string, duration time.Duration, err error)

	// RecordEvaluation records the outcome of a successful evaluation.
	RecordEvaluation(ctx context.Context, ruleID int64, result bool)

	// RecordCombine records how many rules went into a combination and the operator chosen.
	RecordCombine(ctx context.Context, ruleCount int, operator string)
}

type otelMetrics struct {
	operations    metric.Int64Counter
	operationErrs metric.Int64Counter
	latency       metric.Float64Histogram
	evaluations   metric.Int64Counter
	combinedRules metric.Int64Histogram
}

// NewMetricsRecorder returns a MetricsRecorder backed by mp.
// A nil mp uses the global OTel meter provider.
func NewMetricsRecorder(mp metric.MeterProvider) (MetricsRecorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("ruleast")

	operations, err := meter.Int64Counter(MetricOperations,
		metric.WithDescription("Number of engine operations"),
	)
	if err != nil {
		return nil, err
	}

	operationErrs, err := meter.Int64Counter(MetricOperationErrs,
		metric.WithDescription("Number of failed engine operations"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(MetricLatency,
		metric.WithDescription("Engine operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evaluations, err := meter.Int64Counter(MetricEvaluations,
		metric.WithDescription("Number of rule evaluations by result"),
	)
	if err != nil {
		return nil, err
	}

	combinedRules, err := meter.Int64Histogram(MetricCombinedRules,
		metric.WithDescription("Number of rules per combination"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		operations:    operations,
		operationErrs: operationErrs,
		latency:       latency,
		evaluations:   evaluations,
		combinedRules: combinedRules,
	}, nil
}

func (m *otelMetrics) RecordOperation(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))

	m.operations.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.operationErrs.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordEvaluation(ctx context.Context, ruleID int64, result bool) {
	m.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("rule_id", ruleID),
		attribute.Bool("result", result),
	))
}

func (m *otelMetrics) RecordCombine(ctx context.Context, ruleCount int, operator string) {
	m.combinedRules.Record(ctx, int64(ruleCount), metric.WithAttributes(attribute.String("operator", operator)))
}
