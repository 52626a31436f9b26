package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/repository"
	"github.com/roach88/repokit/internal/schema"
)

// CompileEntity parses a CUE value into an entity declaration.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Member: { properties: { id: int } }`)
//	e, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Member")))
func CompileEntity(v cue.Value) (*schema.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	e := &schema.Entity{Name: label(v)}
	var err error
	if e.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if e.ID, err = optionalString(v, "id"); err != nil {
		return nil, err
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, &CompileError{Field: "properties", Message: "properties are required", Pos: v.Pos()}
	}
	columns, err := stringMap(v, "columns")
	if err != nil {
		return nil, err
	}
	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		kind, err := extractKind(iter.Value())
		if err != nil {
			return nil, err
		}
		e.Properties = append(e.Properties, schema.Property{
			Name:   iter.Label(),
			Column: columns[iter.Label()],
			Kind:   kind,
		})
	}
	if len(e.Properties) == 0 {
		return nil, &CompileError{Field: "properties", Message: "at least one property is required", Pos: propsVal.Pos()}
	}

	if e.Associations, err = parseAssociations(v); err != nil {
		return nil, err
	}
	if e.Graphs, err = parseGraphs(v); err != nil {
		return nil, err
	}
	return e, nil
}

func parseAssociations(v cue.Value) ([]schema.Association, error) {
	assocVal := v.LookupPath(cue.ParsePath("associations"))
	if !assocVal.Exists() {
		return nil, nil
	}
	iter, err := assocVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []schema.Association
	for iter.Next() {
		av := iter.Value()
		a := schema.Association{Name: iter.Label()}

		targetVal := av.LookupPath(cue.ParsePath("target"))
		if !targetVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("associations.%s.target", a.Name),
				Message: "association target is required",
				Pos:     av.Pos(),
			}
		}
		if a.Target, err = targetVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		card, err := optionalString(av, "cardinality")
		if err != nil {
			return nil, err
		}
		a.Cardinality = schema.Cardinality(card)
		if a.Cardinality == "" {
			a.Cardinality = schema.ToOne
		}
		if a.Column, err = optionalString(av, "column"); err != nil {
			return nil, err
		}
		if a.MappedBy, err = optionalString(av, "mappedBy"); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseGraphs(v cue.Value) (map[string][]string, error) {
	graphsVal := v.LookupPath(cue.ParsePath("graphs"))
	if !graphsVal.Exists() {
		return nil, nil
	}
	iter, err := graphsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	graphs := map[string][]string{}
	for iter.Next() {
		paths, err := stringList(iter.Value())
		if err != nil {
			return nil, err
		}
		graphs[iter.Label()] = paths
	}
	return graphs, nil
}

// CompileDTO parses a CUE value into a DTO declaration. DTOs declared in
// CUE have no constructor and materialize as projection values.
func CompileDTO(v cue.Value) (*plan.DTO, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	d := &plan.DTO{Name: label(v)}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, &CompileError{Field: "params", Message: "dto params are required", Pos: v.Pos()}
	}
	iter, err := paramsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		kind, err := extractKind(iter.Value())
		if err != nil {
			return nil, err
		}
		d.Params = append(d.Params, plan.DTOParam{Name: iter.Label(), Kind: kind})
	}
	return d, nil
}

// CompileRepository parses a CUE value into a repository declaration.
// Methods and their parameters keep declaration order.
func CompileRepository(v cue.Value) (*repository.Declaration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	decl := &repository.Declaration{Name: label(v)}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "repository entity is required", Pos: v.Pos()}
	}
	entity, err := entityVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	decl.Entity = entity

	methodsVal := v.LookupPath(cue.ParsePath("methods"))
	if !methodsVal.Exists() {
		return decl, nil
	}
	iter, err := methodsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		m, err := parseMethod(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decl.Methods = append(decl.Methods, m)
	}
	return decl, nil
}

func parseMethod(name string, v cue.Value) (plan.MethodDecl, error) {
	m := plan.MethodDecl{Name: name}
	field := func(f string) string { return fmt.Sprintf("methods.%s.%s", name, f) }

	if paramsVal := v.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
		iter, err := paramsVal.Fields()
		if err != nil {
			return m, formatCUEError(err)
		}
		for iter.Next() {
			typ, err := extractParamType(iter.Value())
			if err != nil {
				return m, err
			}
			m.Params = append(m.Params, queryir.Param{Name: iter.Label(), Type: typ})
		}
	}

	if returnsVal := v.LookupPath(cue.ParsePath("returns")); returnsVal.Exists() {
		// "page" is shorthand for {kind: "page"}
		if kind, err := returnsVal.String(); err == nil {
			m.Returns.Kind = plan.ResultKind(kind)
		} else {
			k, err := optionalString(returnsVal, "kind")
			if err != nil {
				return m, err
			}
			m.Returns.Kind = plan.ResultKind(k)
			if m.Returns.Of, err = optionalString(returnsVal, "of"); err != nil {
				return m, err
			}
		}
	}

	var err error
	if m.Query, err = optionalString(v, "query"); err != nil {
		return m, err
	}
	if m.CountQuery, err = optionalString(v, "countQuery"); err != nil {
		return m, err
	}
	if m.Modifying, err = optionalBool(v, "modifying"); err != nil {
		return m, err
	}
	inv, err := optionalString(v, "invalidate")
	if err != nil {
		return m, err
	}
	m.Invalidate = plan.Invalidation(inv)

	if fetchVal := v.LookupPath(cue.ParsePath("fetch")); fetchVal.Exists() {
		if m.Fetch.Graph, err = optionalString(fetchVal, "graph"); err != nil {
			return m, err
		}
		if pathsVal := fetchVal.LookupPath(cue.ParsePath("paths")); pathsVal.Exists() {
			if m.Fetch.Paths, err = stringList(pathsVal); err != nil {
				return m, err
			}
		}
	}

	if m.Lock, err = optionalString(v, "lock"); err != nil {
		return m, err
	}
	if m.Hints, err = stringMap(v, "hints"); err != nil {
		return m, err
	}
	if m.HintsForCounting, err = optionalBool(v, "hintsForCounting"); err != nil {
		return m, err
	}
	if limitVal := v.LookupPath(cue.ParsePath("limit")); limitVal.Exists() {
		n, err := limitVal.Int64()
		if err != nil {
			return m, &CompileError{Field: field("limit"), Message: "limit must be an int", Pos: limitVal.Pos()}
		}
		m.Limit = int(n)
	}
	if m.InMemoryPaging, err = optionalBool(v, "inMemoryPaging"); err != nil {
		return m, err
	}
	return m, nil
}

// extractKind converts a CUE type or a type name into a property kind.
// Floats are forbidden: ids, counts and comparisons are integral.
func extractKind(v cue.Value) (schema.Kind, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, _ := v.String()
		k := schema.Kind(name)
		if !k.Valid() {
			return "", &CompileError{Field: "type", Message: fmt.Sprintf("unsupported property type %q", name), Pos: v.Pos()}
		}
		return k, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.KindString, nil
	case cue.IntKind:
		return schema.KindInt, nil
	case cue.BoolKind:
		return schema.KindBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{Field: "type", Message: "float types are forbidden - use int instead", Pos: v.Pos()}
	default:
		return "", &CompileError{Field: "type", Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()), Pos: v.Pos()}
	}
}

// extractParamType converts a CUE type or a type name ("paging", "sort",
// "list", ...) into a parameter type.
func extractParamType(v cue.Value) (queryir.ParamType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, _ := v.String()
		t := queryir.ParamType(name)
		if !t.Valid() {
			return "", &CompileError{Field: "type", Message: fmt.Sprintf("unsupported parameter type %q", name), Pos: v.Pos()}
		}
		return t, nil
	}
	if v.IncompleteKind() == cue.ListKind {
		return queryir.ParamList, nil
	}
	k, err := extractKind(v)
	if err != nil {
		return "", err
	}
	return queryir.ParamType(k), nil
}

func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMap(v cue.Value, name string) (map[string]string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := map[string]string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out[iter.Label()] = s
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// first error with a position wins
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
