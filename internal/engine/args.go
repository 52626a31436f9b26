package engine

import (
	"fmt"
	"reflect"

	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/queryir"
)

// invocation holds the validated arguments of one call.
type invocation struct {
	args    []any
	request *paging.Request
	sort    queryir.Sort
}

// bindArgs checks args against the declared parameters and normalizes
// integers to int64. The paging and sort arguments are pulled out; their
// positions in args are left as they were.
func bindArgs(method string, params []queryir.Param, args []any) (*invocation, error) {
	if len(args) != len(params) {
		return nil, &ArgumentError{Method: method, Reason: fmt.Sprintf("got %d argument(s), want %d", len(args), len(params))}
	}
	inv := &invocation{args: make([]any, len(args))}
	for i, p := range params {
		v := args[i]
		switch p.Type {
		case queryir.ParamPaging:
			switch r := v.(type) {
			case paging.Request:
				inv.request = &r
			case *paging.Request:
				if r == nil {
					return nil, &ArgumentError{Method: method, Param: p.Name, Reason: "paging request is nil"}
				}
				inv.request = r
			default:
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: fmt.Sprintf("want paging.Request, got %T", v)}
			}
		case queryir.ParamSort:
			switch s := v.(type) {
			case nil:
			case queryir.Sort:
				inv.sort = s
			case []queryir.Order:
				inv.sort = queryir.Sort(s)
			default:
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: fmt.Sprintf("want queryir.Sort, got %T", v)}
			}
		case queryir.ParamInt:
			n, ok := toInt64(v)
			if !ok && v != nil {
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: fmt.Sprintf("want int, got %T", v)}
			}
			if ok {
				v = n
			}
		case queryir.ParamString:
			if _, ok := v.(string); !ok && v != nil {
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: fmt.Sprintf("want string, got %T", v)}
			}
		case queryir.ParamBool:
			if _, ok := v.(bool); !ok && v != nil {
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: fmt.Sprintf("want bool, got %T", v)}
			}
		case queryir.ParamList:
			list, err := normalizeList(v)
			if err != nil {
				return nil, &ArgumentError{Method: method, Param: p.Name, Reason: err.Error()}
			}
			v = list
		}
		inv.args[i] = v
	}
	if r := inv.request; r != nil && (r.Size() <= 0 || r.Index() < 0) {
		return nil, &ArgumentError{Method: method, Param: pagingParam(params), Reason: fmt.Sprintf("invalid paging request: page %d size %d", r.Index(), r.Size())}
	}
	return inv, nil
}

func pagingParam(params []queryir.Param) string {
	for _, p := range params {
		if p.Type == queryir.ParamPaging {
			return p.Name
		}
	}
	return ""
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// normalizeList copies a slice argument into []any with integers widened.
// A nil list is an empty list.
func normalizeList(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("want a list, got %T", v)
	}
	if _, isBytes := v.([]byte); isBytes {
		return nil, fmt.Errorf("want a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		item := rv.Index(i).Interface()
		if n, ok := toInt64(item); ok {
			item = n
		}
		out[i] = item
	}
	return out, nil
}
