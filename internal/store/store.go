package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/querysql"
	"github.com/roach88/repokit/internal/schema"
)

// LockWait selects how a unit of work behaves when another one holds the
// database write lock.
type LockWait string

const (
	// LockWaitBlock waits up to the configured timeout.
	LockWaitBlock LockWait = "block"
	// LockWaitFailFast fails immediately with SQLITE_BUSY.
	LockWaitFailFast LockWait = "fail_fast"
)

// ParseLockWait parses "block" or "fail_fast". Empty means block.
func ParseLockWait(s string) (LockWait, error) {
	switch LockWait(strings.ToLower(s)) {
	case "", LockWaitBlock:
		return LockWaitBlock, nil
	case LockWaitFailFast:
		return LockWaitFailFast, nil
	}
	return "", fmt.Errorf("invalid lock wait policy %q", s)
}

const defaultLockTimeout = 5 * time.Second

type options struct {
	lockWait     LockWait
	lockTimeout  time.Duration
	maxOpenConns int
	logger       *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithLockWait sets the lock-wait policy. timeout applies to LockWaitBlock;
// zero keeps the default of five seconds.
func WithLockWait(policy LockWait, timeout time.Duration) Option {
	return func(o *options) {
		o.lockWait = policy
		if timeout > 0 {
			o.lockTimeout = timeout
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithLogger sets the logger for statement and unit-of-work events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Store is the SQLite persistence provider.
// Uses WAL mode so implicit readers never wait on a transactional writer.
type Store struct {
	db       *sql.DB
	reg      *schema.Registry
	compiler *querysql.Compiler
	opts     options
	logger   *slog.Logger
}

var _ provider.Provider = (*Store)(nil)

// Open creates or opens a SQLite database at path and creates the tables of
// every registered entity.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout from the lock-wait policy
//   - Foreign key enforcement
//   - BEGIN IMMEDIATE for transactions, so a unit of work takes the write
//     lock up front and lock contention follows the lock-wait policy
//
// This function is idempotent - safe to call multiple times.
func Open(path string, reg *schema.Registry, opts ...Option) (*Store, error) {
	o := options{
		lockWait:     LockWaitBlock,
		lockTimeout:  defaultLockTimeout,
		maxOpenConns: 4,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxOpenConns)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db, reg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:       db,
		reg:      reg,
		compiler: querysql.NewCompiler(reg),
		opts:     o,
		logger:   o.logger,
	}, nil
}

// dsn carries the per-connection settings, which PRAGMA statements on a
// pooled *sql.DB would only apply to one connection.
func dsn(path string, o options) string {
	busy := o.lockTimeout.Milliseconds()
	if o.lockWait == LockWaitFailFast {
		busy = 0
	}
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(busy))
	q.Set("_foreign_keys", "on")
	q.Set("_synchronous", "NORMAL")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer units of work.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Registry returns the entity registry the store was opened with.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// applyPragmas sets database-wide configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

const locksTable = `CREATE TABLE IF NOT EXISTS repokit_locks (
	entity TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	acquisitions INTEGER NOT NULL
)`

// applySchema creates a table per entity plus the lock table.
// This function is idempotent.
func applySchema(db *sql.DB, reg *schema.Registry) error {
	stmts := []string{locksTable}
	for _, e := range reg.Entities() {
		stmts = append(stmts, createTable(reg, e))
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

func createTable(reg *schema.Registry, e *schema.Entity) string {
	var cols []string
	for _, c := range querysql.Columns(e) {
		switch {
		case c.Property != nil && c.Property.Name == e.ID:
			cols = append(cols, c.Name+" INTEGER PRIMARY KEY AUTOINCREMENT")
		case c.Property != nil && c.Property.Kind == schema.KindString:
			cols = append(cols, c.Name+" TEXT")
		case c.Property != nil:
			cols = append(cols, c.Name+" INTEGER")
		default:
			target, _ := reg.Entity(c.Association.Target)
			cols = append(cols, fmt.Sprintf("%s INTEGER REFERENCES %s(%s)", c.Name, target.Table, target.IDProperty().Column))
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", e.Table, strings.Join(cols, ",\n\t"))
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRowContext(context.Background(), query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
