package schema

import (
	"errors"
	"fmt"
)

// ErrNotFetched is returned when an association that was not part of the
// query's fetch plan is accessed. Records never load lazily.
var ErrNotFetched = errors.New("association not fetched")

// Ref identifies an associated entity instance that was not fetched.
type Ref struct {
	Entity string
	ID     int64
}

// Record is a hydrated entity instance.
//
// Fields holds scalar properties (int64, string, bool or nil), including the id.
// Links holds associations by name:
//   - Ref: to-one association whose target was not fetched
//   - *Record: fetched to-one association
//   - nil: to-one association with a NULL foreign key
//   - []*Record: fetched to-many association
//
// A to-many association absent from Links was not fetched.
type Record struct {
	Entity string
	Fields map[string]any
	Links  map[string]any
}

// NewRecord creates a record for entity with the given scalar fields.
func NewRecord(entity string, fields map[string]any) *Record {
	r := &Record{Entity: entity, Fields: make(map[string]any, len(fields)), Links: map[string]any{}}
	for k, v := range fields {
		r.Fields[k] = v
	}
	return r
}

// Get returns a scalar field value.
func (r *Record) Get(name string) any {
	return r.Fields[name]
}

// Set assigns a scalar field value.
func (r *Record) Set(name string, v any) {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields[name] = v
}

// Link assigns an association value. v must be a Ref, *Record, []*Record or nil.
func (r *Record) Link(name string, v any) {
	if r.Links == nil {
		r.Links = map[string]any{}
	}
	r.Links[name] = v
}

// ID returns the id stored under the entity's id property.
// ok is false for records that were never persisted.
func (r *Record) ID(e *Entity) (int64, bool) {
	id, ok := r.Fields[e.ID].(int64)
	return id, ok
}

// Association returns a fetched association value: *Record (possibly nil) or []*Record.
func (r *Record) Association(name string) (any, error) {
	v, ok := r.Links[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", r.Entity, name, ErrNotFetched)
	}
	if _, isRef := v.(Ref); isRef {
		return nil, fmt.Errorf("%s.%s: %w", r.Entity, name, ErrNotFetched)
	}
	return v, nil
}

// One returns a fetched to-one association. A NULL reference yields (nil, nil).
func (r *Record) One(name string) (*Record, error) {
	v, err := r.Association(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a to-one association", r.Entity, name)
	}
	return rec, nil
}

// Many returns a fetched to-many association.
func (r *Record) Many(name string) ([]*Record, error) {
	v, err := r.Association(name)
	if err != nil {
		return nil, err
	}
	recs, ok := v.([]*Record)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a to-many association", r.Entity, name)
	}
	return recs, nil
}

// ForeignKey returns the referenced id of a to-one association, or nil when
// the reference is NULL. Fetched and unfetched references both work.
func (r *Record) ForeignKey(name string, target *Entity) any {
	switch v := r.Links[name].(type) {
	case Ref:
		return v.ID
	case *Record:
		if v == nil {
			return nil
		}
		if id, ok := v.ID(target); ok {
			return id
		}
	}
	return nil
}

// CloneFields returns a shallow copy of the scalar fields.
func (r *Record) CloneFields() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}
