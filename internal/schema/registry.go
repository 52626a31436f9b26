package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DefinitionError reports an invalid entity definition.
type DefinitionError struct {
	Entity  string
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entity %s: %s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("entity %s: %s", e.Entity, e.Message)
}

// PathError reports a property path that does not resolve against an entity.
type PathError struct {
	Entity  string
	Path    Path
	Segment string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("entity %s has no property %q (path %q)", e.Entity, e.Segment, e.Path.String())
}

// Registry holds validated entity definitions keyed by name.
// A Registry is immutable after NewRegistry returns and safe for concurrent use.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

// NewRegistry validates and registers the given entities.
// Entities are copied; later changes to the arguments have no effect.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}

	for _, in := range entities {
		e := cloneEntity(in)
		if err := normalizeEntity(e); err != nil {
			return nil, err
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, &DefinitionError{Entity: e.Name, Message: "duplicate entity name"}
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
	}

	for _, name := range r.order {
		if err := r.validateAssociations(r.entities[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range r.order {
		if err := r.validateGraphs(r.entities[name]); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Entity returns the entity with the given name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns all entities in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Graph returns the attribute paths of a named fetch graph.
// Names are qualified by entity: "Member.all".
func (r *Registry) Graph(qualified string) ([]Path, error) {
	entityName, graphName, ok := strings.Cut(qualified, ".")
	if !ok {
		return nil, fmt.Errorf("graph name %q must be qualified as Entity.graph", qualified)
	}
	e, found := r.entities[entityName]
	if !found {
		return nil, fmt.Errorf("graph %q: unknown entity %q", qualified, entityName)
	}
	attrs, found := e.Graphs[graphName]
	if !found {
		return nil, fmt.Errorf("graph %q: entity %s declares no graph %q", qualified, entityName, graphName)
	}
	paths := make([]Path, 0, len(attrs))
	for _, a := range attrs {
		paths = append(paths, ParsePath(a))
	}
	return paths, nil
}

// Step is one resolved segment of a path.
// Exactly one of Property and Association is set.
type Step struct {
	Owner       *Entity
	Property    *Property
	Association *Association
}

// Resolved is a property path validated against the property graph.
type Resolved struct {
	Root  *Entity
	Path  Path
	Steps []Step
}

// Leaf returns the last step.
func (r *Resolved) Leaf() Step {
	return r.Steps[len(r.Steps)-1]
}

// IsScalar reports whether the path ends at a scalar property.
func (r *Resolved) IsScalar() bool {
	return r.Leaf().Property != nil
}

// Kind returns the comparable kind at the end of the path.
// A path ending at a to_one association compares by the target id.
func (r *Resolved) Kind() Kind {
	leaf := r.Leaf()
	if leaf.Property != nil {
		return leaf.Property.Kind
	}
	return KindInt
}

// TraversesToMany reports whether any association step is to_many.
func (r *Resolved) TraversesToMany() bool {
	for _, s := range r.Steps {
		if s.Association != nil && s.Association.Cardinality == ToMany {
			return true
		}
	}
	return false
}

// AssociationsOnly reports whether every step is an association.
func (r *Resolved) AssociationsOnly() bool {
	for _, s := range r.Steps {
		if s.Association == nil {
			return false
		}
	}
	return true
}

// Resolve validates path against the property graph rooted at entity root.
func (r *Registry) Resolve(root string, path Path) (*Resolved, error) {
	owner, ok := r.entities[root]
	if !ok {
		return nil, &DefinitionError{Entity: root, Message: "unknown entity"}
	}
	if len(path) == 0 {
		return nil, &PathError{Entity: root, Path: path}
	}

	res := &Resolved{Root: owner, Path: append(Path(nil), path...)}
	for i, seg := range path {
		if owner == nil {
			// previous segment was scalar; nothing further to traverse
			return nil, &PathError{Entity: res.Steps[i-1].Owner.Name, Path: path, Segment: seg}
		}
		if p, found := owner.Property(seg); found {
			res.Steps = append(res.Steps, Step{Owner: owner, Property: p})
			owner = nil
			continue
		}
		if a, found := owner.Association(seg); found {
			res.Steps = append(res.Steps, Step{Owner: owner, Association: a})
			owner = r.entities[a.Target]
			continue
		}
		return nil, &PathError{Entity: owner.Name, Path: path, Segment: seg}
	}
	return res, nil
}

func (r *Registry) validateAssociations(e *Entity) error {
	for _, a := range e.Associations {
		target, ok := r.entities[a.Target]
		if !ok {
			return &DefinitionError{Entity: e.Name, Field: "associations." + a.Name, Message: fmt.Sprintf("unknown target entity %q", a.Target)}
		}
		if a.Cardinality != ToMany {
			continue
		}
		back, ok := target.Association(a.MappedBy)
		if !ok || back.Cardinality != ToOne || back.Target != e.Name {
			return &DefinitionError{
				Entity:  e.Name,
				Field:   "associations." + a.Name,
				Message: fmt.Sprintf("mapped_by %q must name a to_one association on %s targeting %s", a.MappedBy, a.Target, e.Name),
			}
		}
	}
	return nil
}

func (r *Registry) validateGraphs(e *Entity) error {
	names := make([]string, 0, len(e.Graphs))
	for name := range e.Graphs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, attr := range e.Graphs[name] {
			res, err := r.Resolve(e.Name, ParsePath(attr))
			if err != nil {
				return &DefinitionError{Entity: e.Name, Field: "graphs." + name, Message: err.Error()}
			}
			if !res.AssociationsOnly() {
				return &DefinitionError{Entity: e.Name, Field: "graphs." + name, Message: fmt.Sprintf("%q is not an association path", attr)}
			}
		}
	}
	return nil
}

func normalizeEntity(e *Entity) error {
	if !identifierPattern.MatchString(e.Name) {
		return &DefinitionError{Entity: e.Name, Field: "name", Message: "invalid identifier"}
	}
	if e.Table == "" {
		e.Table = SnakeCase(e.Name)
	}
	if !identifierPattern.MatchString(e.Table) {
		return &DefinitionError{Entity: e.Name, Field: "table", Message: fmt.Sprintf("invalid table name %q", e.Table)}
	}
	if e.ID == "" {
		e.ID = "id"
	}

	seen := make(map[string]bool)
	for i := range e.Properties {
		p := &e.Properties[i]
		if !identifierPattern.MatchString(p.Name) {
			return &DefinitionError{Entity: e.Name, Field: "properties", Message: fmt.Sprintf("invalid property name %q", p.Name)}
		}
		if seen[p.Name] {
			return &DefinitionError{Entity: e.Name, Field: "properties." + p.Name, Message: "duplicate name"}
		}
		seen[p.Name] = true
		if !p.Kind.Valid() {
			return &DefinitionError{Entity: e.Name, Field: "properties." + p.Name, Message: fmt.Sprintf("unsupported kind %q", p.Kind)}
		}
		if p.Column == "" {
			p.Column = SnakeCase(p.Name)
		}
		if !identifierPattern.MatchString(p.Column) {
			return &DefinitionError{Entity: e.Name, Field: "properties." + p.Name, Message: fmt.Sprintf("invalid column %q", p.Column)}
		}
	}

	id, ok := e.Property(e.ID)
	if !ok {
		return &DefinitionError{Entity: e.Name, Field: "id", Message: fmt.Sprintf("id property %q is not declared", e.ID)}
	}
	if id.Kind != KindInt {
		return &DefinitionError{Entity: e.Name, Field: "id", Message: "id property must be int"}
	}

	for i := range e.Associations {
		a := &e.Associations[i]
		if !identifierPattern.MatchString(a.Name) {
			return &DefinitionError{Entity: e.Name, Field: "associations", Message: fmt.Sprintf("invalid association name %q", a.Name)}
		}
		if seen[a.Name] {
			return &DefinitionError{Entity: e.Name, Field: "associations." + a.Name, Message: "duplicate name"}
		}
		seen[a.Name] = true
		switch a.Cardinality {
		case ToOne:
			if a.Column == "" {
				a.Column = SnakeCase(a.Name) + "_id"
			}
			if !identifierPattern.MatchString(a.Column) {
				return &DefinitionError{Entity: e.Name, Field: "associations." + a.Name, Message: fmt.Sprintf("invalid column %q", a.Column)}
			}
		case ToMany:
			if a.MappedBy == "" {
				return &DefinitionError{Entity: e.Name, Field: "associations." + a.Name, Message: "to_many association requires mapped_by"}
			}
		default:
			return &DefinitionError{Entity: e.Name, Field: "associations." + a.Name, Message: fmt.Sprintf("unsupported cardinality %q", a.Cardinality)}
		}
	}
	return nil
}

func cloneEntity(in Entity) *Entity {
	out := in
	out.Properties = append([]Property(nil), in.Properties...)
	out.Associations = append([]Association(nil), in.Associations...)
	if in.Graphs != nil {
		out.Graphs = make(map[string][]string, len(in.Graphs))
		for k, v := range in.Graphs {
			out.Graphs[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// SnakeCase converts a camel-case identifier to snake_case: "teamName" -> "team_name".
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
