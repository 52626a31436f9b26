package queryir

import (
	"fmt"
)

// ValidationResult contains the structural analysis of a predicate tree.
type ValidationResult struct {
	// Valid is true when no problems were found.
	Valid bool

	// Problems lists every structural violation found in the tree.
	Problems []string
}

// Validate checks a predicate tree against the method's declared parameters.
//
// Rules:
//  1. Every node is a known predicate type; composites have >= 2 children
//  2. Every operator is known
//  3. Arity-0 leaves bind NoParam; other leaves bind an in-range, non-special parameter
//  4. Arity-N leaves bind a list parameter; arity-1 leaves bind a scalar parameter
//  5. No parameter is bound by more than one leaf
//
// Path resolution is not checked here; paths are resolved against the schema
// when the tree is built.
//
// Validate is a pure function with no side effects.
func Validate(p Predicate, params []Param) ValidationResult {
	v := &validator{
		params:   params,
		used:     make(map[int]bool),
		problems: []string{},
	}
	if p != nil {
		v.validatePredicate(p)
	}

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	params   []Param
	used     map[int]bool
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Comparison:
		v.validateComparison(pred)
	case *Comparison:
		v.validateComparison(*pred)
	case Composite:
		v.validateComposite(pred)
	case *Composite:
		v.validateComposite(*pred)
	case nil:
		v.addProblem("nil predicate node")
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateComposite(c Composite) {
	if c.Connective != And && c.Connective != Or {
		v.addProblem("unknown connective %q", c.Connective)
	}
	if len(c.Children) < 2 {
		v.addProblem("%s composite with %d children", c.Connective, len(c.Children))
	}
	for _, child := range c.Children {
		v.validatePredicate(child)
	}
}

func (v *validator) validateComparison(c Comparison) {
	if len(c.Path) == 0 {
		v.addProblem("comparison with empty path")
	}
	if !c.Operator.Valid() {
		v.addProblem("%s: unknown operator %q", c.Path, c.Operator)
		return
	}

	if c.Operator.Arity() == ArityNone {
		if c.Param != NoParam {
			v.addProblem("%s %s: operator takes no parameter, bound to #%d", c.Path, c.Operator, c.Param)
		}
		return
	}

	if c.Param < 0 || c.Param >= len(v.params) {
		v.addProblem("%s %s: parameter #%d out of range", c.Path, c.Operator, c.Param)
		return
	}
	if v.used[c.Param] {
		v.addProblem("%s %s: parameter %q bound twice", c.Path, c.Operator, v.params[c.Param].Name)
	}
	v.used[c.Param] = true

	param := v.params[c.Param]
	switch {
	case param.Type.Special():
		v.addProblem("%s %s: %s parameter %q cannot be compared", c.Path, c.Operator, param.Type, param.Name)
	case c.Operator.Arity() == ArityMany && param.Type != ParamList:
		v.addProblem("%s %s: parameter %q must be a list", c.Path, c.Operator, param.Name)
	case c.Operator.Arity() == ArityOne && param.Type == ParamList:
		v.addProblem("%s %s: parameter %q is a list", c.Path, c.Operator, param.Name)
	}
}
