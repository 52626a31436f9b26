package provider

import (
	"context"
	"errors"

	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// StatementKind selects the statement form a provider produces.
type StatementKind string

const (
	// StatementSelect returns one tuple per result element.
	StatementSelect StatementKind = "select"
	// StatementCount returns a single tuple holding the row count.
	StatementCount StatementKind = "count"
	// StatementExists returns a single tuple when at least one row matches.
	StatementExists StatementKind = "exists"
	// StatementDelete removes every row matching Predicate.
	StatementDelete StatementKind = "delete"
	// StatementMutation runs modifying Text as-is.
	StatementMutation StatementKind = "mutation"
)

// Statement is a provider-neutral description of one round trip.
//
// A statement is either derived (Predicate and positional Args, indexed by
// declared parameter position) or override (Text with :name placeholders and
// Named values). Raw override statements run Text unchanged apart from
// placeholder binding; others are wrapped so the provider can apply Sort,
// the window and Fetch.
type Statement struct {
	Method string
	Entity string
	Kind   StatementKind

	Text  string
	Named map[string]any
	Raw   bool
	// Projected selects the override text's own columns instead of
	// hydrating Entity.
	Projected bool

	Predicate queryir.Predicate
	Args      []any

	Sort     queryir.Sort
	Distinct bool
	// Columns selects property paths instead of the entity; used by derived
	// DTO projections.
	Columns []schema.Path
	Fetch   []schema.Path

	Offset int64
	// Limit caps the rows returned; 0 means none.
	Limit int64

	Lock  queryir.LockMode
	Hints map[string]string
}

// Tuple is one result row. For entity selects Tuple[0] is a *schema.Record;
// otherwise it holds one value per selected column.
type Tuple []any

// Options configure a unit of work.
type Options struct {
	Transactional bool
	// ReadOnly skips dirty tracking of hydrated entities.
	ReadOnly bool
}

// Provider opens units of work.
type Provider interface {
	Begin(ctx context.Context, opts Options) (UnitOfWork, error)
}

// UnitOfWork is a single-threaded persistence context: one transaction (when
// transactional) plus an identity map of managed records.
type UnitOfWork interface {
	ID() string
	Transactional() bool

	Execute(ctx context.Context, stmt *Statement) ([]Tuple, error)
	ExecuteMutation(ctx context.Context, stmt *Statement) (int64, error)

	Identity() IdentityCache

	// Persist inserts a record without an id or merges one with an id; the
	// record becomes managed.
	Persist(ctx context.Context, rec *schema.Record) error
	// Find returns the managed record for id, loading it when absent.
	Find(ctx context.Context, entity string, id int64) (*schema.Record, bool, error)
	Remove(ctx context.Context, rec *schema.Record) error
	Flush(ctx context.Context) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IdentityCache is the unit-of-work-local identity map.
type IdentityCache interface {
	// Invalidate evicts every managed record of entity.
	Invalidate(entity string)
	Clear()
	Len() int
}

// ErrClosed is returned by operations on a committed or rolled back unit of work.
var ErrClosed = errors.New("unit of work is closed")
