package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/querysql"
	"github.com/roach88/repokit/internal/schema"
)

func (u *UnitOfWork) entity(name string) (*schema.Entity, error) {
	e, ok := u.store.reg.Entity(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return e, nil
}

// Persist makes rec managed.
//
// A record without an id is inserted immediately and receives the generated
// id. A record with an id that is not managed is merged with an upsert. A
// managed record is left to the next flush.
func (u *UnitOfWork) Persist(ctx context.Context, rec *schema.Record) error {
	if u.closed {
		return provider.ErrClosed
	}
	e, err := u.entity(rec.Entity)
	if err != nil {
		return err
	}
	values, err := columnValues(u.store.reg, e, rec)
	if err != nil {
		return err
	}
	idCol := e.IDProperty().Column

	id, hasID := rec.ID(e)
	if hasID {
		if m, ok := u.identity.get(e.Name, id); ok {
			// another instance with the same id replaces the managed one;
			// its changes are written by the next flush
			m.rec = rec
			return nil
		}
	}

	cols, args := insertColumns(e, values, hasID)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Table, strings.Join(cols, ", "), marks)
	if hasID {
		var sets []string
		for _, c := range cols {
			if c != idCol {
				sets = append(sets, c+" = excluded."+c)
			}
		}
		if len(sets) > 0 {
			query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", idCol, strings.Join(sets, ", "))
		}
	}

	res, err := u.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("persist %s: %w", e.Name, err)
	}
	if !hasID {
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("persist %s: last insert id: %w", e.Name, err)
		}
		rec.Set(e.ID, id)
		values[idCol] = id
	}

	m := &managed{rec: rec}
	if !u.readOnly {
		m.snapshot = values
	}
	u.identity.put(e.Name, id, m)
	u.logger.Debug("record persisted", "entity", e.Name, "id", id)
	return nil
}

func insertColumns(e *schema.Entity, values map[string]any, withID bool) ([]string, []any) {
	var cols []string
	var args []any
	for _, c := range querysql.Columns(e) {
		if c.Property != nil && c.Property.Name == e.ID && !withID {
			continue
		}
		cols = append(cols, c.Name)
		args = append(args, values[c.Name])
	}
	return cols, args
}

// Find returns the managed record for id, loading it when absent.
func (u *UnitOfWork) Find(ctx context.Context, entity string, id int64) (*schema.Record, bool, error) {
	if u.closed {
		return nil, false, provider.ErrClosed
	}
	e, err := u.entity(entity)
	if err != nil {
		return nil, false, err
	}
	if m, ok := u.identity.get(e.Name, id); ok {
		return m.rec, true, nil
	}

	tuples, err := u.Execute(ctx, &provider.Statement{
		Method: "findById",
		Entity: e.Name,
		Kind:   provider.StatementSelect,
		Predicate: queryir.Comparison{
			Path:     schema.Path{e.ID},
			Operator: queryir.OpEquals,
			Param:    0,
		},
		Args: []any{id},
	})
	if err != nil {
		return nil, false, err
	}
	if len(tuples) == 0 {
		return nil, false, nil
	}
	return tuples[0][0].(*schema.Record), true, nil
}

// Remove deletes rec and evicts it from the identity map.
func (u *UnitOfWork) Remove(ctx context.Context, rec *schema.Record) error {
	if u.closed {
		return provider.ErrClosed
	}
	e, err := u.entity(rec.Entity)
	if err != nil {
		return err
	}
	id, ok := rec.ID(e)
	if !ok {
		return fmt.Errorf("remove %s: record has no id", e.Name)
	}
	if err := u.Flush(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", e.Table, e.IDProperty().Column)
	if _, err := u.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("remove %s %d: %w", e.Name, id, err)
	}
	u.identity.remove(e.Name, id)
	return nil
}

// Flush writes the changed columns of every dirty-checked managed record.
func (u *UnitOfWork) Flush(ctx context.Context) error {
	if u.closed {
		return provider.ErrClosed
	}
	return u.identity.each(func(k identityKey, m *managed) error {
		if m.snapshot == nil {
			return nil
		}
		e, err := u.entity(k.entity)
		if err != nil {
			return err
		}
		current, err := columnValues(u.store.reg, e, m.rec)
		if err != nil {
			return err
		}

		var sets []string
		var args []any
		for _, c := range querysql.Columns(e) {
			if c.Property != nil && c.Property.Name == e.ID {
				continue
			}
			if current[c.Name] != m.snapshot[c.Name] {
				sets = append(sets, c.Name+" = ?")
				args = append(args, current[c.Name])
			}
		}
		if len(sets) == 0 {
			return nil
		}
		args = append(args, k.id)
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", e.Table, strings.Join(sets, ", "), e.IDProperty().Column)
		if _, err := u.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("flush %s %d: %w", e.Name, k.id, err)
		}
		m.snapshot = current
		u.logger.Debug("record flushed", "entity", e.Name, "id", k.id, "columns", len(sets))
		return nil
	})
}
