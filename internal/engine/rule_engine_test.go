package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/coffersTech/ruleast/internal/observability"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/coffersTech/ruleast/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newEngine(t *testing.T) *RuleEngine {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, Options{})
}

func tuple(age float64, dept string, salary, experience float64) ruleql.Tuple {
	return ruleql.Tuple{
		Age:        ruleql.NumberValue(age),
		Department: ruleql.StringValue(dept),
		Salary:     ruleql.NumberValue(salary),
		Experience: ruleql.NumberValue(experience),
	}
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	text := "((age > 30 AND department = 'Sales'))"
	rule, err := e.CreateRule(ctx, "sales", text)
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)
	assert.Equal(t, text, rule.RuleString, "created rules keep the caller's text")
	require.NotNil(t, rule.Rule)
	assert.Equal(t, ruleql.TypeBinary, rule.Rule.Type)

	got, err := e.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule, got)
}

func TestCreateRuleErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.CreateRule(ctx, "bad", "age > ")
	var syn *ruleql.SyntaxError
	assert.ErrorAs(t, err, &syn)

	_, err = e.CreateRule(ctx, "  ", "age > 30")
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = e.CreateRule(ctx, "r", "age > 30")
	require.NoError(t, err)
	_, err = e.CreateRule(ctx, "r", "age > 40")
	assert.ErrorIs(t, err, storage.ErrDuplicateName)

	rules, err := e.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCombineRules(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	a, err := e.CreateRule(ctx, "R1", "age > 30 AND department = 'Sales'")
	require.NoError(t, err)
	b, err := e.CreateRule(ctx, "R2", "salary > 50000 OR experience > 5")
	require.NoError(t, err)

	combined, err := e.CombineRules(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, "R1 + R2", combined.RuleName)
	assert.Equal(t, "age > 30 AND (department = 'Sales' AND (salary > 50000 OR experience > 5))", combined.RuleString)

	ok, err := e.Evaluate(ctx, combined.ID, tuple(35, "Sales", 60000, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(ctx, combined.ID, tuple(35, "Marketing", 60000, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	// Same parts, same name
	_, err = e.CombineRules(ctx, []int64{a.ID, b.ID})
	assert.ErrorIs(t, err, storage.ErrDuplicateName)

	// Reversed order gives a different name
	rev, err := e.CombineRules(ctx, []int64{b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, "R2 + R1", rev.RuleName)
}

func TestCombineRulesOfCombined(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	a, err := e.CreateRule(ctx, "A", "age > 30")
	require.NoError(t, err)
	b, err := e.CreateRule(ctx, "B", "salary > 1000")
	require.NoError(t, err)
	ab, err := e.CombineRules(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)

	c, err := e.CreateRule(ctx, "C", "experience > 2")
	require.NoError(t, err)
	abc, err := e.CombineRules(ctx, []int64{ab.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, "A + B + C", abc.RuleName)

	ok, err := e.Evaluate(ctx, abc.ID, tuple(40, "HR", 2000, 3))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Evaluate(ctx, abc.ID, tuple(40, "HR", 2000, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCombineRulesErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.CombineRules(ctx, nil)
	assert.ErrorIs(t, err, ruleql.ErrEmptyInput)

	_, err = e.CombineRules(ctx, []int64{99})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCombineSingleRule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	a, err := e.CreateRule(ctx, "only", "(age > 30)")
	require.NoError(t, err)

	// The combination is named like its source, so it collides
	_, err = e.CombineRules(ctx, []int64{a.ID})
	assert.ErrorIs(t, err, storage.ErrDuplicateName)
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	r, err := e.CreateRule(ctx, "r",
		"((age > 30 AND department = 'Marketing')) AND (salary > 20000 OR experience > 5)")
	require.NoError(t, err)

	tests := []struct {
		name  string
		tuple ruleql.Tuple
		want  bool
	}{
		{"matches", tuple(35, "Marketing", 25000, 1), true},
		{"experience only", tuple(35, "Marketing", 1000, 6), true},
		{"wrong department", tuple(35, "Sales", 25000, 6), false},
		{"too young", tuple(25, "Marketing", 25000, 6), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, r.ID, tt.tuple)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = e.Evaluate(ctx, 1234, tuple(1, "x", 1, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEvaluateUnknownIdentifier(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	r, err := e.CreateRule(ctx, "r", "height > 180")
	require.NoError(t, err)

	_, err = e.Evaluate(ctx, r.ID, tuple(1, "x", 1, 1))
	var unknown *ruleql.UnknownIdentifierError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "height", unknown.Name)
}

func TestListRulesAndStats(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	rules, err := e.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	for _, n := range []string{"x", "y"} {
		_, err := e.CreateRule(ctx, n, "age > 1")
		require.NoError(t, err)
	}

	rules, err = e.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "x", rules[0].RuleName)
	assert.Equal(t, "y", rules[1].RuleName)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rules)
}

func TestEngineWithFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.OpenFileStore(dir, nil)
	require.NoError(t, err)
	e := New(store, Options{})
	r, err := e.CreateRule(ctx, "r", "department = 'HR'")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = storage.OpenFileStore(dir, nil)
	require.NoError(t, err)
	defer store.Close()
	e = New(store, Options{})

	ok, err := e.Evaluate(ctx, r.ID, tuple(1, "HR", 1, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngineObservability(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)
	metrics, err := observability.NewMetricsRecorder(mp)
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(ctx)

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	e := New(store, Options{Metrics: metrics, Spans: observability.NewSpanManager(tp)})

	r, err := e.CreateRule(ctx, "r", "age > 30")
	require.NoError(t, err)
	_, err = e.CreateRule(ctx, "broken", "age >")
	require.Error(t, err)
	_, err = e.Evaluate(ctx, r.ID, tuple(40, "x", 1, 1))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "ruleast.create", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "ruleast.eval", spans[2].Name)

	points, err := observability.Snapshot(ctx, reader)
	require.NoError(t, err)

	var creates, failures, evals float64
	for _, p := range points {
		switch {
		case p.Name == observability.MetricOperations && p.Attributes["op"] == OpCreate:
			creates = p.Value
		case p.Name == observability.MetricOperationErrs && p.Attributes["op"] == OpCreate:
			failures = p.Value
		case p.Name == observability.MetricEvaluations && p.Attributes["result"] == "true":
			evals = p.Value
		}
	}
	assert.Equal(t, float64(2), creates)
	assert.Equal(t, float64(1), failures)
	assert.Equal(t, float64(1), evals)
}

func TestEngineClosedStore(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	e := New(store, Options{})
	require.NoError(t, store.Close())

	_, err = e.CreateRule(context.Background(), "r", "age > 1")
	assert.True(t, errors.Is(err, storage.ErrStoreClosed))
}
