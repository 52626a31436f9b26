package store

import (
	"fmt"

	"github.com/roach88/repokit/internal/projection"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/querysql"
	"github.com/roach88/repokit/internal/schema"
)

type identityKey struct {
	entity string
	id     int64
}

// managed is one identity-map entry. snapshot holds the column values last
// written or read; nil means the record is not dirty-checked.
type managed struct {
	rec      *schema.Record
	snapshot map[string]any
}

// identityMap guarantees one record instance per entity id inside a unit of
// work. Entries keep insertion order so flushes are deterministic.
type identityMap struct {
	entries map[identityKey]*managed
	order   []identityKey
}

var _ provider.IdentityCache = (*identityMap)(nil)

func newIdentityMap() *identityMap {
	return &identityMap{entries: map[identityKey]*managed{}}
}

func (m *identityMap) get(entity string, id int64) (*managed, bool) {
	e, ok := m.entries[identityKey{entity, id}]
	return e, ok
}

func (m *identityMap) put(entity string, id int64, e *managed) {
	k := identityKey{entity, id}
	if _, exists := m.entries[k]; !exists {
		m.order = append(m.order, k)
	}
	m.entries[k] = e
}

func (m *identityMap) remove(entity string, id int64) {
	k := identityKey{entity, id}
	if _, ok := m.entries[k]; !ok {
		return
	}
	delete(m.entries, k)
	m.compact()
}

// each visits live entries in insertion order.
func (m *identityMap) each(fn func(k identityKey, e *managed) error) error {
	for _, k := range m.order {
		if e, ok := m.entries[k]; ok {
			if err := fn(k, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Invalidate evicts every record of entity. Evicted records stay valid Go
// values but are no longer managed: later reads return fresh instances.
func (m *identityMap) Invalidate(entity string) {
	for k := range m.entries {
		if k.entity == entity {
			delete(m.entries, k)
		}
	}
	m.compact()
}

// Clear evicts every record.
func (m *identityMap) Clear() {
	m.entries = map[identityKey]*managed{}
	m.order = nil
}

// Len returns the number of managed records.
func (m *identityMap) Len() int {
	return len(m.entries)
}

func (m *identityMap) compact() {
	kept := m.order[:0]
	for _, k := range m.order {
		if _, ok := m.entries[k]; ok {
			kept = append(kept, k)
		}
	}
	m.order = kept
}

// columnValues returns the stored column values of rec keyed by column name,
// with scalar values normalized to their property kind.
func columnValues(reg *schema.Registry, e *schema.Entity, rec *schema.Record) (map[string]any, error) {
	out := map[string]any{}
	for _, c := range querysql.Columns(e) {
		if c.Property != nil {
			v, err := projection.Coerce(rec.Get(c.Property.Name), c.Property.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, c.Property.Name, err)
			}
			out[c.Name] = v
			continue
		}
		target, _ := reg.Entity(c.Association.Target)
		out[c.Name] = rec.ForeignKey(c.Association.Name, target)
	}
	return out, nil
}
