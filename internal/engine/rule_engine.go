package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/observability"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/coffersTech/ruleast/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyName is returned when a rule is created without a name.
var ErrEmptyName = errors.New("rule name is required")

// Operation names used for metrics and spans.
const (
	OpCreate  = "create"
	OpCombine = "combine"
	OpEval    = "eval"
	OpList    = "list"
	OpGet     = "get"
)

// Options configures a RuleEngine. Zero values disable metrics and tracing.
type Options struct {
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// RuleEngine ties the rule language to a Store.
type RuleEngine struct {
	store   storage.Store
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Stats summarizes the rule table.
type Stats struct {
	Rules int `json:"rules"`
}

// New creates a RuleEngine on top of store.
func New(store storage.Store, opts Options) *RuleEngine {
	e := &RuleEngine{
		store:   store,
		metrics: opts.Metrics,
		spans:   opts.Spans,
	}
	if e.metrics == nil {
		e.metrics = observability.NoopMetrics{}
	}
	if e.spans == nil {
		e.spans = observability.NoopSpanManager{}
	}
	return e
}

// track records metrics for one operation and ends its span.
func (e *RuleEngine) track(ctx context.Context, op string, start time.Time, end func(error), err error) {
	e.metrics.RecordOperation(ctx, op, time.Since(start), err)
	end(err)
}

func (e *RuleEngine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := e.spans.StartSpan(ctx, op, attrs...)
	return ctx, func(err error) { e.spans.EndSpanWithError(span, err) }
}

// CreateRule parses text and stores it under name. The text is stored as given.
func (e *RuleEngine) CreateRule(ctx context.Context, name, text string) (rule model.Rule, err error) {
	start := time.Now()
	ctx, end := e.start(ctx, OpCreate, attribute.String("rule.name", name))
	defer func() { e.track(ctx, OpCreate, start, end, err) }()

	if strings.TrimSpace(name) == "" {
		return model.Rule{}, ErrEmptyName
	}

	ast, err := ruleql.Parse(text)
	if err != nil {
		return model.Rule{}, err
	}

	rule = model.Rule{
		RuleString: text,
		RuleName:   name,
		Rule:       ruleql.Serialize(ast),
	}
	rule.ID, err = e.store.Insert(ctx, rule)
	if err != nil {
		return model.Rule{}, err
	}
	return rule, nil
}

// CombineRules joins the stored rules with the given ids into a new rule.
// The new rule is named after its parts, so combining the same ids twice
// fails with storage.ErrDuplicateName.
func (e *RuleEngine) CombineRules(ctx context.Context, ids []int64) (rule model.Rule, err error) {
	start := time.Now()
	ctx, end := e.start(ctx, OpCombine, attribute.Int("rule.count", len(ids)))
	defer func() { e.track(ctx, OpCombine, start, end, err) }()

	if len(ids) == 0 {
		return model.Rule{}, ruleql.ErrEmptyInput
	}

	parts, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return model.Rule{}, err
	}

	texts := make([]string, len(parts))
	names := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.RuleString
		names[i] = p.RuleName
	}

	ast, err := ruleql.Combine(texts)
	if err != nil {
		return model.Rule{}, fmt.Errorf("combine: %w", err)
	}

	var op string
	if bin, ok := ast.(ruleql.BinaryExpr); ok {
		op = string(bin.Op)
	}
	e.metrics.RecordCombine(ctx, len(parts), op)

	rule = model.Rule{
		RuleString: ruleql.String(ast),
		RuleName:   ruleql.CombinedName(names),
		Rule:       ruleql.Serialize(ast),
	}
	rule.ID, err = e.store.Insert(ctx, rule)
	if err != nil {
		return model.Rule{}, err
	}
	return rule, nil
}

// Evaluate checks the stored tree of rule id against t.
func (e *RuleEngine) Evaluate(ctx context.Context, id int64, t ruleql.Tuple) (result bool, err error) {
	start := time.Now()
	ctx, end := e.start(ctx, OpEval, attribute.Int64("rule.id", id))
	defer func() { e.track(ctx, OpEval, start, end, err) }()

	rule, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}

	ast, err := ruleql.Deserialize(rule.Rule)
	if err != nil {
		return false, fmt.Errorf("rule %d: %w", id, err)
	}

	result, err = ruleql.Evaluate(ast, t)
	if err != nil {
		return false, fmt.Errorf("rule %d: %w", id, err)
	}
	e.metrics.RecordEvaluation(ctx, id, result)
	return result, nil
}

// ListRules returns the id and name of every rule in id order.
func (e *RuleEngine) ListRules(ctx context.Context) (out []model.Summary, err error) {
	start := time.Now()
	ctx, end := e.start(ctx, OpList)
	defer func() { e.track(ctx, OpList, start, end, err) }()

	rules, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]model.Summary, len(rules))
	for i, r := range rules {
		out[i] = model.Summary{ID: r.ID, RuleName: r.RuleName}
	}
	return out, nil
}

// GetRule returns the full record of rule id.
func (e *RuleEngine) GetRule(ctx context.Context, id int64) (rule model.Rule, err error) {
	start := time.Now()
	ctx, end := e.start(ctx, OpGet, attribute.Int64("rule.id", id))
	defer func() { e.track(ctx, OpGet, start, end, err) }()

	return e.store.Get(ctx, id)
}

// Stats counts stored rules.
func (e *RuleEngine) Stats(ctx context.Context) (Stats, error) {
	rules, err := e.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Rules: len(rules)}, nil
}
