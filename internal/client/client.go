// Package client is a Go client for the ruleast HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/google/uuid"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ruleast: %d %s (request %s)", e.Status, e.Message, e.RequestID)
}

// Client talks to one ruleast server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. token is sent as a bearer token when not empty.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Message:   strings.TrimSpace(string(data)),
			RequestID: resp.Header.Get("X-Request-ID"),
		}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Message != "" {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// CreateRule stores a rule and returns its id.
func (c *Client) CreateRule(ctx context.Context, name, rule string) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/createRule", map[string]string{
		"rule":      rule,
		"rule_name": name,
	}, &resp)
	return resp.ID, err
}

// CombineRules combines stored rules and returns the new id and tree.
func (c *Client) CombineRules(ctx context.Context, ids []int64) (int64, *ruleql.Tree, error) {
	var resp struct {
		CombinedAST *ruleql.Tree `json:"combinedAST"`
		ID          int64        `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/combineRules", map[string][]int64{"ruleids": ids}, &resp)
	return resp.ID, resp.CombinedAST, err
}

// ListRules returns every rule id and name. An empty table gives an empty slice.
func (c *Client) ListRules(ctx context.Context) ([]model.Summary, error) {
	var resp struct {
		Rules []model.Summary `json:"rules"`
	}
	err := c.do(ctx, http.MethodGet, "/api/getRules", nil, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return []model.Summary{}, nil
	}
	return resp.Rules, err
}

// GetRule fetches a full rule record.
func (c *Client) GetRule(ctx context.Context, id int64) (model.Rule, error) {
	var rule model.Rule
	err := c.do(ctx, http.MethodGet, "/api/rules/"+strconv.FormatInt(id, 10), nil, &rule)
	return rule, err
}

// Evaluate runs rule id against data. Values should be numbers or strings.
func (c *Client) Evaluate(ctx context.Context, id int64, data map[string]any) (bool, error) {
	var resp struct {
		Result bool `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "/api/eval", map[string]any{
		"ruleId": id,
		"data":   data,
	}, &resp)
	return resp.Result, err
}

// Stats is the server's /api/stats answer.
type Stats struct {
	Rules    int              `json:"rules"`
	Requests int64            `json:"requests"`
	Metrics  []map[string]any `json:"metrics"`
}

// Stats fetches server statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s)
	return s, err
}
