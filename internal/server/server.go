package server

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/coffersTech/ruleast/internal/engine"
	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/valyala/fastjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// RuleService is the engine surface the HTTP API needs.
type RuleService interface {
	CreateRule(ctx context.Context, name, text string) (model.Rule, error)
	CombineRules(ctx context.Context, ids []int64) (model.Rule, error)
	Evaluate(ctx context.Context, id int64, t ruleql.Tuple) (bool, error)
	ListRules(ctx context.Context) ([]model.Summary, error)
	GetRule(ctx context.Context, id int64) (model.Rule, error)
	Stats(ctx context.Context) (engine.Stats, error)
}

// Options configures a RuleServer.
type Options struct {
	// WebDir is served at / when set.
	WebDir string
	// TokenHash is the bcrypt hash of the API token guarding mutating routes.
	// Empty disables auth.
	TokenHash string
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// Metrics is read by /api/stats when set.
	Metrics *sdkmetric.ManualReader
}

// RuleServer exposes the rule engine over HTTP.
type RuleServer struct {
	rules    RuleService
	opts     Options
	srv      *http.Server
	parser   fastjson.ParserPool
	requests int64 // Monotonic counter for API requests
}

func NewRuleServer(rules RuleService, opts Options) *RuleServer {
	return &RuleServer{
		rules: rules,
		opts:  opts,
	}
}

// Handler builds the route table wrapped in the request ID and CORS middleware.
func (s *RuleServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Mutating routes (protected when a token hash is configured)
	mux.Handle("/api/createRule", s.AuthMiddleware(http.HandlerFunc(s.handleCreateRule)))
	mux.Handle("/api/combineRules", s.AuthMiddleware(http.HandlerFunc(s.handleCombineRules)))

	mux.HandleFunc("/api/getRules", s.handleGetRules)
	mux.HandleFunc("/api/eval", s.handleEval)
	mux.HandleFunc("/api/rules/", s.handleRuleItem)
	mux.HandleFunc("/api/stats", s.handleStats)

	// Static file serving for web directory
	if s.opts.WebDir != "" {
		fs := http.FileServer(http.Dir(s.opts.WebDir))
		mux.Handle("/", fs)
	}

	return s.RequestIDMiddleware(s.CORSMiddleware(s.countRequests(mux)))
}

func (s *RuleServer) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requests, 1)
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until Shutdown is called.
func (s *RuleServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Printf("HTTP API listening on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *RuleServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
