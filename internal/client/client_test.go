package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coffersTech/ruleast/internal/engine"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/coffersTech/ruleast/internal/server"
	"github.com/coffersTech/ruleast/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newServer(t *testing.T, tokenHash string) *httptest.Server {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := server.NewRuleServer(engine.New(store, engine.Options{}), server.Options{TokenHash: tokenHash})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := newServer(t, "")
	c := New(ts.URL+"/", "")

	rules, err := c.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	a, err := c.CreateRule(ctx, "R1", "age > 30 AND department = 'Sales'")
	require.NoError(t, err)
	b, err := c.CreateRule(ctx, "R2", "salary > 50000")
	require.NoError(t, err)

	id, tree, err := c.CombineRules(ctx, []int64{a, b})
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, ruleql.TypeBinary, tree.Type)

	rule, err := c.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "R1 + R2", rule.RuleName)

	ok, err := c.Evaluate(ctx, id, map[string]any{"age": 40, "department": "Sales", "salary": 60000})
	require.NoError(t, err)
	assert.True(t, ok)

	rules, err = c.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rules)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	ts := newServer(t, "")
	c := New(ts.URL, "")

	_, err := c.CreateRule(ctx, "bad", "age >")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "syntax error")
	assert.NotEmpty(t, apiErr.RequestID)

	_, err = c.GetRule(ctx, 77)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientToken(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("tok"), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newServer(t, string(hash))

	_, err = New(ts.URL, "").CreateRule(ctx, "r", "age > 1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = New(ts.URL, "tok").CreateRule(ctx, "r", "age > 1")
	assert.NoError(t, err)
}
