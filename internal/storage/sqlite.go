package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"

	"modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// connPragmas run on every pooled connection. Concurrent writers wait on
// the lock for up to busy_timeout instead of failing with SQLITE_BUSY.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLiteStore persists rules in the ast_rules table.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens the database at path, creating the table if needed.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a distinct database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ast_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_string TEXT NOT NULL,
			rule_name TEXT NOT NULL UNIQUE,
			rule TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, r model.Rule) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	tree, err := json.Marshal(r.Rule)
	if err != nil {
		return 0, fmt.Errorf("encode rule tree: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ast_rules (rule_string, rule, rule_name) VALUES (?, ?, ?)`,
		r.RuleString, string(tree), r.RuleName)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateName, r.RuleName)
		}
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	return res.LastInsertId()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Rule{}, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, rule_string, rule_name, rule FROM ast_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Rule{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r, err
}

// GetMany implements Store.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []int64) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(ids) == 0 {
		return []model.Rule{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_string, rule_name, rule FROM ast_rules WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]model.Rule, len(ids))
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		found[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	// IN does not keep the caller's order
	result := make([]model.Rule, 0, len(ids))
	for _, id := range ids {
		r, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		result = append(result, r)
	}
	return result, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_string, rule_name, rule FROM ast_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	result := []model.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return result, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connPragmas
	}
	return path + "?" + connPragmas
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (model.Rule, error) {
	var (
		r    model.Rule
		tree string
	)
	if err := sc.Scan(&r.ID, &r.RuleString, &r.RuleName, &tree); err != nil {
		return model.Rule{}, err
	}
	r.Rule = new(ruleql.Tree)
	if err := json.Unmarshal([]byte(tree), r.Rule); err != nil {
		return model.Rule{}, fmt.Errorf("decode rule %d tree: %w", r.ID, err)
	}
	return r, nil
}
