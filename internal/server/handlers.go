package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/coffersTech/ruleast/internal/observability"
)

// handleCreateRule processes POST /api/createRule {rule, rule_name}.
func (s *RuleServer) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := s.readBody(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	text, err := stringField(v, "rule")
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := stringField(v, "rule_name")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := s.rules.CreateRule(r.Context(), name, text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule created and stored successfully",
		"id":      rule.ID,
	})
}

// handleCombineRules processes POST /api/combineRules {ruleids}.
func (s *RuleServer) handleCombineRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := s.readBody(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := idList(v, "ruleids")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := s.rules.CombineRules(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"combinedAST": rule.Rule,
		"id":          rule.ID,
	})
}

// handleGetRules processes GET /api/getRules.
func (s *RuleServer) handleGetRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(rules) == 0 {
		writeMessage(w, http.StatusNotFound, "No rules found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// handleEval processes POST /api/eval {ruleId, data}.
func (s *RuleServer) handleEval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := s.readBody(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := idValue(v.Get("ruleId"), "ruleId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := tupleValue(v, "data")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.rules.Evaluate(r.Context(), id, data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleRuleItem processes GET /api/rules/{id}.
func (s *RuleServer) handleRuleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || strings.Contains(raw, "/") {
		writeError(w, r, badRequest("invalid rule id %q", raw))
		return
	}

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	Rules    int                   `json:"rules"`
	Requests int64                 `json:"requests"`
	Metrics  []observability.Point `json:"metrics,omitempty"`
}

// handleStats processes GET /api/stats.
func (s *RuleServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := s.rules.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := statsResponse{
		Rules:    stats.Rules,
		Requests: atomic.LoadInt64(&s.requests),
	}
	if s.opts.Metrics != nil {
		resp.Metrics, err = observability.Snapshot(r.Context(), s.opts.Metrics)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
