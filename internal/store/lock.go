package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrLockRequiresTransaction is returned when a pessimistic lock is requested
// outside a transactional unit of work.
var ErrLockRequiresTransaction = errors.New("pessimistic lock requires a transactional unit of work")

// acquireLock records a PESSIMISTIC_WRITE lock on entity for this unit.
//
// The unit's BEGIN IMMEDIATE transaction already holds SQLite's write lock,
// so the lock lasts until commit or rollback; the row in repokit_locks names
// the owner for diagnostics.
func (u *UnitOfWork) acquireLock(ctx context.Context, entity string) error {
	if u.tx == nil {
		return ErrLockRequiresTransaction
	}
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO repokit_locks (entity, owner, acquisitions) VALUES (?, ?, 1)
		ON CONFLICT(entity) DO UPDATE SET owner = excluded.owner, acquisitions = acquisitions + 1
	`, entity, u.id)
	if err != nil {
		return fmt.Errorf("acquire lock on %s: %w", entity, err)
	}
	u.logger.Debug("lock acquired", "entity", entity, "mode", "PESSIMISTIC_WRITE")
	return nil
}

// LockOwner returns the unit of work that last locked entity, if any.
func (s *Store) LockOwner(ctx context.Context, entity string) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM repokit_locks WHERE entity = ?`, entity)
	if err != nil {
		return "", false, fmt.Errorf("query lock owner: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var owner string
	if err := rows.Scan(&owner); err != nil {
		return "", false, fmt.Errorf("scan lock owner: %w", err)
	}
	return owner, true, nil
}
