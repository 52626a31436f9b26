package repository

import (
	"fmt"

	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/queryir"
)

// Params returns the declared parameters of a method.
func (r *Repository) Params(method string) ([]queryir.Param, error) {
	spec, ok := r.specs[method]
	if !ok {
		return nil, &UnknownMethodError{Repository: r.name, Method: method}
	}
	switch s := spec.(type) {
	case *plan.QuerySpec:
		return s.Params, nil
	case *plan.BulkMutationSpec:
		return s.Params, nil
	}
	return nil, fmt.Errorf("%s.%s: unsupported spec %T", r.name, method, spec)
}

// Arguments lays out positional arguments for params: values fill the plain
// parameters in order, req goes to the paging parameter and sort to the sort
// parameter. A method with a paging parameter requires req.
func Arguments(params []queryir.Param, values []any, req *paging.Request, sort queryir.Sort) ([]any, error) {
	args := make([]any, len(params))
	next := 0
	for i, p := range params {
		switch p.Type {
		case queryir.ParamPaging:
			if req == nil {
				return nil, fmt.Errorf("parameter %s: paging request required", p.Name)
			}
			args[i] = *req
		case queryir.ParamSort:
			args[i] = sort
		default:
			if next >= len(values) {
				return nil, fmt.Errorf("parameter %s: missing value (got %d)", p.Name, len(values))
			}
			args[i] = values[next]
			next++
		}
	}
	if next != len(values) {
		return nil, fmt.Errorf("got %d value(s), want %d", len(values), next)
	}
	return args, nil
}
