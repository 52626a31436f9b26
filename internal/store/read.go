package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/repokit/internal/projection"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/querysql"
	"github.com/roach88/repokit/internal/schema"
)

// hydrate turns entity rows into managed records.
//
// Each row holds one block of columns per segment. Root records are returned
// once each, in first-appearance order; rows repeated by to-many joins only
// add children. A record already in the identity map is reused as-is, so
// in-memory state wins over the row.
//
// Returns an empty slice (not nil) if no rows match.
func (u *UnitOfWork) hydrate(rows *sql.Rows, segs []querysql.Segment, readOnly bool) ([]provider.Tuple, error) {
	layouts := make([][]querysql.Column, len(segs))
	width := 0
	for i, s := range segs {
		layouts[i] = querysql.Columns(s.Entity)
		width += len(layouts[i])
	}

	tuples := []provider.Tuple{}
	seenRoot := map[*schema.Record]bool{}
	// to-many links reset once per parent per query
	initialized := map[*schema.Record]map[string]bool{}

	raw := make([]any, width)
	ptrs := make([]any, width)
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		recs := make([]*schema.Record, len(segs))
		offset := 0
		for i, s := range segs {
			block := raw[offset : offset+len(layouts[i])]
			offset += len(layouts[i])

			var parent *schema.Record
			if s.Parent >= 0 {
				parent = recs[s.Parent]
				if parent == nil {
					continue
				}
				if s.Association.Cardinality == schema.ToMany {
					if initialized[parent] == nil {
						initialized[parent] = map[string]bool{}
					}
					if !initialized[parent][s.Association.Name] {
						initialized[parent][s.Association.Name] = true
						parent.Link(s.Association.Name, []*schema.Record{})
					}
				}
			}

			rec, err := u.materialize(s.Entity, layouts[i], block, readOnly)
			if err != nil {
				return nil, err
			}
			recs[i] = rec

			switch {
			case parent == nil:
			case s.Association.Cardinality == schema.ToOne:
				if rec == nil {
					parent.Link(s.Association.Name, nil)
				} else {
					parent.Link(s.Association.Name, rec)
				}
			case rec != nil:
				children, _ := parent.Links[s.Association.Name].([]*schema.Record)
				if !containsRecord(children, rec) {
					parent.Link(s.Association.Name, append(children, rec))
				}
			}
		}

		if root := recs[0]; root != nil && !seenRoot[root] {
			seenRoot[root] = true
			tuples = append(tuples, provider.Tuple{root})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tuples, nil
}

// materialize returns the managed record for a column block, building and
// registering it on first sight. A NULL id (outer join miss) yields nil.
func (u *UnitOfWork) materialize(e *schema.Entity, cols []querysql.Column, block []any, readOnly bool) (*schema.Record, error) {
	var id int64
	idFound := false
	for i, c := range cols {
		if c.Property != nil && c.Property.Name == e.ID && block[i] != nil {
			v, err := projection.Coerce(block[i], schema.KindInt)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, e.ID, err)
			}
			id, idFound = v.(int64), true
		}
	}
	if !idFound {
		return nil, nil
	}
	if m, ok := u.identity.get(e.Name, id); ok {
		return m.rec, nil
	}

	rec := schema.NewRecord(e.Name, nil)
	snapshot := make(map[string]any, len(cols))
	for i, c := range cols {
		if c.Property != nil {
			v, err := projection.Coerce(block[i], c.Property.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, c.Property.Name, err)
			}
			rec.Set(c.Property.Name, v)
			snapshot[c.Name] = v
			continue
		}
		if block[i] == nil {
			rec.Link(c.Association.Name, nil)
			snapshot[c.Name] = nil
			continue
		}
		fk, err := projection.Coerce(block[i], schema.KindInt)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, c.Association.Name, err)
		}
		rec.Link(c.Association.Name, schema.Ref{Entity: c.Association.Target, ID: fk.(int64)})
		snapshot[c.Name] = fk
	}

	m := &managed{rec: rec}
	if !readOnly {
		m.snapshot = snapshot
	}
	u.identity.put(e.Name, id, m)
	return rec, nil
}

func containsRecord(list []*schema.Record, rec *schema.Record) bool {
	for _, r := range list {
		if r == rec {
			return true
		}
	}
	return false
}

// scanTuples reads every column of every row as-is.
// Returns an empty slice (not nil) if no rows match.
func scanTuples(rows *sql.Rows) ([]provider.Tuple, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	tuples := []provider.Tuple{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range raw {
			if b, ok := v.([]byte); ok {
				raw[i] = string(b)
			}
		}
		tuples = append(tuples, provider.Tuple(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tuples, nil
}

// scanExists returns a single true tuple when any row exists.
func scanExists(rows *sql.Rows) ([]provider.Tuple, error) {
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if !found {
		return []provider.Tuple{}, nil
	}
	return []provider.Tuple{{true}}, nil
}
