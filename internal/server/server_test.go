package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/coffersTech/ruleast/internal/engine"
	"github.com/coffersTech/ruleast/internal/observability"
	"github.com/coffersTech/ruleast/internal/storage"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engOpts := engine.Options{}
	if opts.Metrics != nil {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(opts.Metrics))
		t.Cleanup(func() { mp.Shutdown(context.Background()) })
		m, err := observability.NewMetricsRecorder(mp)
		if err != nil {
			t.Fatalf("NewMetricsRecorder: %v", err)
		}
		engOpts.Metrics = m
	}
	return NewRuleServer(engine.New(store, engOpts), opts).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func createRule(t *testing.T, h http.Handler, name, rule string) float64 {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"rule": rule, "rule_name": name})
	w, resp := do(t, h, "POST", "/api/createRule", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("createRule %q: status %d, body %s", name, w.Code, w.Body.String())
	}
	return resp["id"].(float64)
}

func TestCreateAndEvaluate(t *testing.T) {
	h := newTestServer(t, Options{})

	body := `{"rule": "((age > 30 AND department = 'Sales') OR (age < 25 AND department = 'Marketing')) AND (salary > 50000 OR experience > 5)", "rule_name": "rule1"}`
	w, resp := do(t, h, "POST", "/api/createRule", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["message"] != "Rule created and stored successfully" {
		t.Errorf("unexpected message: %v", resp["message"])
	}
	id := resp["id"].(float64)

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"sales senior", `{"age": 35, "department": "Sales", "salary": 60000, "experience": 3}`, true},
		{"marketing junior", `{"age": 22, "department": "Marketing", "salary": 1000, "experience": 6}`, true},
		{"low pay", `{"age": 35, "department": "Sales", "salary": 1000, "experience": 1}`, false},
		{"numeric string age", `{"age": "35", "department": "Sales", "salary": 60000, "experience": 3}`, true},
		{"missing fields", `{"age": 35}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"ruleId": ` + jsonNumber(id) + `, "data": ` + tt.data + `}`
			w, resp := do(t, h, "POST", "/api/eval", body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if resp["result"] != tt.want {
				t.Errorf("result = %v, want %v", resp["result"], tt.want)
			}
		})
	}
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestEvalStringRuleID(t *testing.T) {
	h := newTestServer(t, Options{})
	createRule(t, h, "r", "department = 'HR'")

	w, resp := do(t, h, "POST", "/api/eval", `{"ruleId": "1", "data": {"department": "HR"}}`)
	if w.Code != http.StatusOK || resp["result"] != true {
		t.Fatalf("got %d %v", w.Code, resp)
	}
}

func TestCombineRules(t *testing.T) {
	h := newTestServer(t, Options{})
	a := createRule(t, h, "R1", "age > 30 AND department = 'Sales'")
	b := createRule(t, h, "R2", "salary > 50000 OR experience > 5")

	w, resp := do(t, h, "POST", "/api/combineRules", `{"ruleids": [`+jsonNumber(a)+`, `+jsonNumber(b)+`]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ast, ok := resp["combinedAST"].(map[string]any)
	if !ok {
		t.Fatalf("combinedAST missing: %v", resp)
	}
	if ast["type"] != "BinaryExpression" || ast["operator"] != "AND" {
		t.Errorf("unexpected root: %v", ast)
	}
	id := resp["id"].(float64)

	w, resp = do(t, h, "GET", "/api/rules/"+jsonNumber(id), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["rule_name"] != "R1 + R2" {
		t.Errorf("rule_name = %v", resp["rule_name"])
	}
	if resp["rule_string"] != "age > 30 AND (department = 'Sales' AND (salary > 50000 OR experience > 5))" {
		t.Errorf("rule_string = %v", resp["rule_string"])
	}

	// Same combination again collides on the name
	w, _ = do(t, h, "POST", "/api/combineRules", `{"ruleids": [`+jsonNumber(a)+`, `+jsonNumber(b)+`]}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestGetRules(t *testing.T) {
	h := newTestServer(t, Options{})

	w, resp := do(t, h, "GET", "/api/getRules", "")
	if w.Code != http.StatusNotFound || resp["message"] != "No rules found" {
		t.Fatalf("expected 404 No rules found, got %d %v", w.Code, resp)
	}

	createRule(t, h, "first", "age > 1")
	createRule(t, h, "second", "age > 2")

	w, resp = do(t, h, "GET", "/api/getRules", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rules := resp["rules"].([]any)
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	first := rules[0].(map[string]any)
	if first["ruleName"] != "first" || first["id"] != float64(1) {
		t.Errorf("unexpected first rule: %v", first)
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t, Options{})
	createRule(t, h, "taken", "age > 30")
	unknown := createRule(t, h, "height", "height > 180")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty body", "POST", "/api/createRule", "", http.StatusBadRequest},
		{"invalid json", "POST", "/api/createRule", "{", http.StatusBadRequest},
		{"not an object", "POST", "/api/createRule", "[]", http.StatusBadRequest},
		{"missing rule", "POST", "/api/createRule", `{"rule_name": "x"}`, http.StatusBadRequest},
		{"rule not a string", "POST", "/api/createRule", `{"rule": 5, "rule_name": "x"}`, http.StatusBadRequest},
		{"syntax error", "POST", "/api/createRule", `{"rule": "age >", "rule_name": "x"}`, http.StatusBadRequest},
		{"empty name", "POST", "/api/createRule", `{"rule": "age > 1", "rule_name": ""}`, http.StatusBadRequest},
		{"duplicate name", "POST", "/api/createRule", `{"rule": "age > 1", "rule_name": "taken"}`, http.StatusConflict},
		{"wrong method", "GET", "/api/createRule", "", http.StatusMethodNotAllowed},
		{"combine empty", "POST", "/api/combineRules", `{"ruleids": []}`, http.StatusBadRequest},
		{"combine not array", "POST", "/api/combineRules", `{"ruleids": 1}`, http.StatusBadRequest},
		{"combine unknown id", "POST", "/api/combineRules", `{"ruleids": [1, 99]}`, http.StatusNotFound},
		{"combine fractional id", "POST", "/api/combineRules", `{"ruleids": [1.5]}`, http.StatusBadRequest},
		{"eval unknown rule", "POST", "/api/eval", `{"ruleId": 99, "data": {}}`, http.StatusNotFound},
		{"eval missing data", "POST", "/api/eval", `{"ruleId": 1}`, http.StatusBadRequest},
		{"eval bool field", "POST", "/api/eval", `{"ruleId": 1, "data": {"age": true}}`, http.StatusBadRequest},
		{"eval unknown identifier", "POST", "/api/eval", `{"ruleId": ` + jsonNumber(unknown) + `, "data": {"age": 1}}`, http.StatusUnprocessableEntity},
		{"rule item bad id", "GET", "/api/rules/abc", "", http.StatusBadRequest},
		{"rule item missing", "GET", "/api/rules/42", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if _, ok := resp["message"]; !ok {
				t.Errorf("expected a message in the error body, got %v", resp)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, Options{TokenHash: string(hash)})
	body := `{"rule": "age > 1", "rule_name": "r"}`

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer token", "Bearer s3cret", "", http.StatusOK},
		{"query token", "", "?token=s3cret", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/createRule"+tt.query, strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	// Read routes stay open
	w, _ := do(t, h, "GET", "/api/getRules", "")
	if w.Code != http.StatusOK {
		t.Errorf("getRules: expected 200, got %d", w.Code)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	h := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest("OPTIONS", "/api/createRule", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight: expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request ID")
	}

	req = httptest.NewRequest("GET", "/api/getRules", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q", got)
	}
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want echo", got)
	}
}

func TestStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	h := newTestServer(t, Options{Metrics: reader})
	createRule(t, h, "r", "age > 30")
	do(t, h, "POST", "/api/eval", `{"ruleId": 1, "data": {"age": 40}}`)

	w, resp := do(t, h, "GET", "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["rules"] != float64(1) {
		t.Errorf("rules = %v", resp["rules"])
	}
	if resp["requests"] != float64(3) {
		t.Errorf("requests = %v", resp["requests"])
	}

	found := false
	for _, m := range resp["metrics"].([]any) {
		p := m.(map[string]any)
		if p["name"] == observability.MetricEvaluations {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in metrics: %v", observability.MetricEvaluations, resp["metrics"])
	}
}

func TestStaticWebDir(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(dir+"/index.html", "<h1>rules</h1>"); err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, Options{WebDir: dir})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "rules") {
		t.Errorf("static: got %d %q", w.Code, w.Body.String())
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
