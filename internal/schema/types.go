package schema

import "strings"

// Kind is the value type of a scalar property.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
)

// Valid reports whether k is a supported property kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInt, KindBool:
		return true
	}
	return false
}

// Cardinality distinguishes single-valued from collection associations.
type Cardinality string

const (
	ToOne  Cardinality = "to_one"
	ToMany Cardinality = "to_many"
)

// Property is a scalar attribute stored in a column of the owner's table.
type Property struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Kind   Kind   `json:"kind"`
}

// Association links an entity to another entity.
//
// For ToOne the owner's table holds Column as the foreign key.
// For ToMany, MappedBy names the ToOne association on Target that points back.
type Association struct {
	Name        string      `json:"name"`
	Target      string      `json:"target"`
	Cardinality Cardinality `json:"cardinality"`
	Column      string      `json:"column,omitempty"`
	MappedBy    string      `json:"mapped_by,omitempty"`
}

// Entity is a persistent type with a table, an id and a property graph.
type Entity struct {
	Name         string              `json:"name"`
	Table        string              `json:"table"`
	ID           string              `json:"id"`
	Properties   []Property          `json:"properties"`
	Associations []Association       `json:"associations,omitempty"`
	Graphs       map[string][]string `json:"graphs,omitempty"` // graph name -> attribute paths
}

// Property returns the scalar property with the given name.
func (e *Entity) Property(name string) (*Property, bool) {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

// Association returns the association with the given name.
func (e *Entity) Association(name string) (*Association, bool) {
	for i := range e.Associations {
		if e.Associations[i].Name == name {
			return &e.Associations[i], true
		}
	}
	return nil, false
}

// IDProperty returns the id property. Registry validation guarantees it exists.
func (e *Entity) IDProperty() *Property {
	p, _ := e.Property(e.ID)
	return p
}

// ForeignKeys returns the to_one associations in declaration order.
// Their columns follow the scalar columns in every hydrated row.
func (e *Entity) ForeignKeys() []*Association {
	var out []*Association
	for i := range e.Associations {
		if e.Associations[i].Cardinality == ToOne {
			out = append(out, &e.Associations[i])
		}
	}
	return out
}

// Path is an ordered sequence of property names reachable from a root entity.
type Path []string

// ParsePath splits a dotted path such as "team.name".
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String returns the dotted form of the path.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Equal reports whether two paths have the same segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Prefix returns the first n segments.
func (p Path) Prefix(n int) Path {
	return append(Path(nil), p[:n]...)
}
