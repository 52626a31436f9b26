package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/repokit/internal/schema"
)

// Predicate represents a filter condition over a root entity's property graph.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the provider compiler.
//
// Predicate types:
//   - Comparison: path <operator> parameter
//   - Composite: AND / OR over child predicates
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Operator is the comparison applied by a Comparison leaf.
type Operator string

const (
	OpEquals           Operator = "EQUALS"
	OpNot              Operator = "NOT"
	OpGreaterThan      Operator = "GREATER_THAN"
	OpGreaterThanEqual Operator = "GREATER_THAN_EQUAL"
	OpLessThan         Operator = "LESS_THAN"
	OpLessThanEqual    Operator = "LESS_THAN_EQUAL"
	OpLike             Operator = "LIKE"
	OpIn               Operator = "IN"
	OpNotIn            Operator = "NOT_IN"
	OpIsNull           Operator = "IS_NULL"
	OpIsNotNull        Operator = "IS_NOT_NULL"
	OpTrue             Operator = "TRUE"
	OpFalse            Operator = "FALSE"
)

// Arity is the number of parameters an operator consumes.
type Arity int

const (
	// ArityNone operators take no parameter (IsNull, True, ...).
	ArityNone Arity = iota
	// ArityOne operators take exactly one scalar parameter.
	ArityOne
	// ArityMany operators take one collection parameter.
	ArityMany
)

// Arity returns the operand arity of the operator.
func (o Operator) Arity() Arity {
	switch o {
	case OpIsNull, OpIsNotNull, OpTrue, OpFalse:
		return ArityNone
	case OpIn, OpNotIn:
		return ArityMany
	default:
		return ArityOne
	}
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNot, OpGreaterThan, OpGreaterThanEqual, OpLessThan, OpLessThanEqual,
		OpLike, OpIn, OpNotIn, OpIsNull, OpIsNotNull, OpTrue, OpFalse:
		return true
	}
	return false
}

// NoParam marks a Comparison whose operator consumes no parameter.
const NoParam = -1

// Comparison is a leaf predicate comparing the value at Path with a method parameter.
//
// Semantics:
//
//	<path> <operator> <params[Param]>
//
// Param is the position of the bound parameter in the method's declared
// parameter list (special paging/sort parameters included), or NoParam for
// arity-0 operators.
//
// Example:
//
//	Comparison{Path: schema.Path{"team", "name"}, Operator: OpEquals, Param: 0}
//
// Translates to SQL (after join planning):
//
//	t1.name = ?
type Comparison struct {
	Path     schema.Path
	Operator Operator
	Param    int
}

func (Comparison) predicateNode() {}

// Connective joins the children of a Composite.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// Composite combines child predicates with a connective.
//
// A Composite always has at least two children; constructors collapse
// single-child composites into the child itself.
type Composite struct {
	Connective Connective
	Children   []Predicate
}

func (Composite) predicateNode() {}

// Combine builds a Composite, collapsing the trivial cases.
// Zero children yield nil; one child is returned as-is.
func Combine(c Connective, children ...Predicate) Predicate {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Composite{Connective: c, Children: children}
}

// Leaves returns the Comparison leaves of p in left-to-right order.
func Leaves(p Predicate) []Comparison {
	var out []Comparison
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch n := p.(type) {
		case Comparison:
			out = append(out, n)
		case *Comparison:
			out = append(out, *n)
		case Composite:
			for _, c := range n.Children {
				walk(c)
			}
		case *Composite:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(p)
	return out
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts "asc"/"desc" in any case. Empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// Order sorts by one property path.
type Order struct {
	Path      schema.Path
	Direction Direction
}

func (o Order) String() string {
	return o.Path.String() + " " + string(o.Direction)
}

// Sort is an ordered list of sort keys. An empty Sort means unspecified order.
type Sort []Order

// By builds a Sort with one key per path, all in direction d.
func By(d Direction, paths ...string) Sort {
	s := make(Sort, 0, len(paths))
	for _, p := range paths {
		s = append(s, Order{Path: schema.ParsePath(p), Direction: d})
	}
	return s
}

// ParseSort parses "username,desc;age" style sort expressions:
// keys separated by ';', each "path[,direction]".
func ParseSort(s string) (Sort, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out Sort
	for _, part := range strings.Split(s, ";") {
		path, dir, _ := strings.Cut(strings.TrimSpace(part), ",")
		if path == "" {
			return nil, fmt.Errorf("invalid sort key %q", part)
		}
		d, err := ParseDirection(strings.TrimSpace(dir))
		if err != nil {
			return nil, err
		}
		out = append(out, Order{Path: schema.ParsePath(path), Direction: d})
	}
	return out, nil
}

// IsUnsorted reports whether s carries no sort keys.
func (s Sort) IsUnsorted() bool {
	return len(s) == 0
}

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		parts[i] = o.String()
	}
	return strings.Join(parts, ", ")
}

// ParamType is the declared type of a method parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
	ParamList   ParamType = "list"   // collection argument for In / NotIn
	ParamPaging ParamType = "paging" // paging.Request
	ParamSort   ParamType = "sort"   // queryir.Sort
)

// Valid reports whether t is a known parameter type.
func (t ParamType) Valid() bool {
	switch t {
	case ParamString, ParamInt, ParamBool, ParamList, ParamPaging, ParamSort:
		return true
	}
	return false
}

// Special reports whether the parameter is consumed by the engine rather than
// bound into the predicate.
func (t ParamType) Special() bool {
	return t == ParamPaging || t == ParamSort
}

// Accepts reports whether a parameter of type t can be compared with a property of kind k.
func (t ParamType) Accepts(k schema.Kind) bool {
	switch t {
	case ParamString:
		return k == schema.KindString
	case ParamInt:
		return k == schema.KindInt
	case ParamBool:
		return k == schema.KindBool
	}
	return false
}

// Param is a declared method parameter.
type Param struct {
	Name string
	Type ParamType
}

// LockMode is the row lock requested for a read.
type LockMode string

const (
	LockNone             LockMode = "NONE"
	LockPessimisticWrite LockMode = "PESSIMISTIC_WRITE"
)

// ParseLockMode validates a lock mode name. Empty means LockNone.
func ParseLockMode(s string) (LockMode, error) {
	switch LockMode(strings.ToUpper(s)) {
	case "", LockNone:
		return LockNone, nil
	case LockPessimisticWrite:
		return LockPessimisticWrite, nil
	}
	return "", fmt.Errorf("unknown lock mode %q", s)
}
