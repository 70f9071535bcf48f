package repository

import (
	"context"
	"errors"

	"outboxapi/internal/model"
)

var (
	// ErrNotFound is returned when no journal row matches.
	ErrNotFound = errors.New("journal entry not found")
	// ErrConflict is returned when a write would break number uniqueness.
	ErrConflict = errors.New("journal number conflict")
)

// JournalRepository defines data access for the registration journal using SQL queries only.
// No business logic here, strictly persistence operations.
type JournalRepository interface {
	// Create inserts a new entry together with its artifacts, if any.
	// A duplicate formatted or sequence number yields ErrConflict.
	Create(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error)

	// FindByID returns entry metadata without binary payloads.
	FindByID(ctx context.Context, id int64) (*model.JournalEntry, error)

	// FindArtifacts loads the binary payloads of an entry.
	FindArtifacts(ctx context.Context, id int64) (*model.JournalArtifacts, error)

	// List returns entries ordered by issue date descending and the filtered total.
	// A non-positive limit returns every matching row.
	List(ctx context.Context, f JournalFilter, pq PageQuery) (*PageResult[model.JournalEntry], error)

	// Update rewrites the correctable columns of an existing entry.
	Update(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error)

	// Delete removes an entry. ErrNotFound if it did not exist.
	Delete(ctx context.Context, id int64) error

	// MaxSequence returns the highest committed sequence number in scope, or 0.
	MaxSequence(ctx context.Context, scope model.Scope) (int, error)

	// NumberTaken reports whether another entry already uses the formatted number.
	NumberTaken(ctx context.Context, formatted string, excludeID int64) (bool, error)

	// WithinTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx JournalRepository) error) error
}

// JournalFilter narrows list and export queries. Zero values mean no restriction.
type JournalFilter struct {
	Year  int
	Month int
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
