package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UnitOfWork is a SQLite persistence context. A transactional unit owns one
// *sql.Tx; a non-transactional unit runs each statement in autocommit mode.
// Not safe for concurrent use.
type UnitOfWork struct {
	store    *Store
	id       string
	tx       *sql.Tx
	q        querier
	readOnly bool
	identity *identityMap
	closed   bool
	logger   *slog.Logger
}

var _ provider.UnitOfWork = (*UnitOfWork)(nil)

// Begin opens a unit of work. Transactional units start a BEGIN IMMEDIATE
// transaction and therefore wait for, or fail on, a concurrent writer
// according to the lock-wait policy.
func (s *Store) Begin(ctx context.Context, opts provider.Options) (provider.UnitOfWork, error) {
	return s.BeginUnit(ctx, opts)
}

// BeginUnit is Begin returning the concrete type.
func (s *Store) BeginUnit(ctx context.Context, opts provider.Options) (*UnitOfWork, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate unit of work id: %w", err)
	}
	u := &UnitOfWork{
		store:    s,
		id:       id.String(),
		q:        s.db,
		readOnly: opts.ReadOnly,
		identity: newIdentityMap(),
		logger:   s.logger.With("uow", id.String()),
	}
	if opts.Transactional {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		u.tx = tx
		u.q = tx
	}
	u.logger.Debug("unit of work started", "transactional", opts.Transactional, "read_only", opts.ReadOnly)
	return u, nil
}

// ID returns the unit's UUIDv7.
func (u *UnitOfWork) ID() string { return u.id }

// Transactional reports whether the unit owns a transaction.
func (u *UnitOfWork) Transactional() bool { return u.tx != nil }

// Identity returns the unit's identity map.
func (u *UnitOfWork) Identity() provider.IdentityCache { return u.identity }

// Execute runs a row-returning statement. Pending changes are flushed first.
func (u *UnitOfWork) Execute(ctx context.Context, stmt *provider.Statement) ([]provider.Tuple, error) {
	if u.closed {
		return nil, provider.ErrClosed
	}
	ctx, cancel := withTimeoutHint(ctx, stmt.Hints)
	defer cancel()

	if err := u.Flush(ctx); err != nil {
		return nil, err
	}
	if stmt.Lock == queryir.LockPessimisticWrite {
		if err := u.acquireLock(ctx, stmt.Entity); err != nil {
			return nil, err
		}
	}

	q, err := u.store.compiler.Compile(stmt)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	rows, err := u.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var tuples []provider.Tuple
	switch {
	case stmt.Kind == provider.StatementExists:
		tuples, err = scanExists(rows)
	case stmt.Kind == provider.StatementSelect && len(q.Segments) > 0:
		hinted, _ := strconv.ParseBool(stmt.Hints[plan.HintReadOnly])
		readOnly := u.readOnly || hinted
		tuples, err = u.hydrate(rows, q.Segments, readOnly)
	default:
		tuples, err = scanTuples(rows)
	}
	if err != nil {
		return nil, err
	}

	u.logger.Debug("statement executed",
		"method", stmt.Method,
		"kind", string(stmt.Kind),
		"rows", len(tuples))
	return tuples, nil
}

// ExecuteMutation runs a modifying statement and returns the affected row
// count. The identity map is left untouched; callers invalidate it.
func (u *UnitOfWork) ExecuteMutation(ctx context.Context, stmt *provider.Statement) (int64, error) {
	if u.closed {
		return 0, provider.ErrClosed
	}
	ctx, cancel := withTimeoutHint(ctx, stmt.Hints)
	defer cancel()

	if err := u.Flush(ctx); err != nil {
		return 0, err
	}
	q, err := u.store.compiler.Compile(stmt)
	if err != nil {
		return 0, fmt.Errorf("compile: %w", err)
	}
	res, err := u.q.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	u.logger.Debug("mutation executed", "method", stmt.Method, "affected", n)
	return n, nil
}

// Commit flushes pending changes and commits the transaction. A failed
// flush rolls the transaction back.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return provider.ErrClosed
	}
	if err := u.Flush(ctx); err != nil {
		return errors.Join(err, u.Rollback(ctx))
	}
	u.closed = true
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.logger.Info("unit of work committed", "managed", u.identity.Len())
	return nil
}

// Rollback discards the transaction. Rolling back a closed unit is a no-op,
// so it is safe to defer.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.identity.Clear()
	if u.tx == nil {
		return nil
	}
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	u.logger.Info("unit of work rolled back")
	return nil
}

// withTimeoutHint applies the timeout hint (milliseconds) as a deadline.
func withTimeoutHint(ctx context.Context, hints map[string]string) (context.Context, context.CancelFunc) {
	v, ok := hints[plan.HintTimeout]
	if !ok {
		return ctx, func() {}
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}
