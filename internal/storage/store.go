package storage

import (
	"context"
	"errors"

	"github.com/coffersTech/ruleast/internal/model"
)

var (
	// ErrNotFound is returned when a rule id does not exist.
	ErrNotFound = errors.New("rule not found")
	// ErrDuplicateName is returned when a rule name is already taken.
	ErrDuplicateName = errors.New("rule name already exists")
	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("store closed")
)

// Store persists rules. Implementations are safe for concurrent use.
//
// Stored trees are shared with callers and must not be modified.
type Store interface {
	// Insert stores a new rule and returns its id. The ID field of r is ignored.
	Insert(ctx context.Context, r model.Rule) (int64, error)

	// Get returns the rule with the given id.
	Get(ctx context.Context, id int64) (model.Rule, error)

	// GetMany returns the rules in the order of ids. Repeated ids are returned repeatedly.
	GetMany(ctx context.Context, ids []int64) ([]model.Rule, error)

	// List returns all rules ordered by id.
	List(ctx context.Context) ([]model.Rule, error)

	// Close releases the store. Close is idempotent.
	Close() error
}
