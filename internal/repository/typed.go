package repository

import (
	"context"
	"fmt"

	"github.com/roach88/repokit/internal/engine"
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
)

// List invokes a list method and converts every element to T.
func List[T any](ctx context.Context, r *Repository, method string, args ...any) ([]T, error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultList)
	if err != nil {
		return nil, err
	}
	return convert[T](method, res.Items)
}

// One invokes a single-result method.
func One[T any](ctx context.Context, r *Repository, method string, args ...any) (T, error) {
	var zero T
	res, err := r.invokeKind(ctx, method, args, plan.ResultSingle)
	if err != nil {
		return zero, err
	}
	items, err := convert[T](method, res.Items)
	if err != nil {
		return zero, err
	}
	return items[0], nil
}

// Optional invokes an optional-result method. ok is false when nothing matched.
func Optional[T any](ctx context.Context, r *Repository, method string, args ...any) (v T, ok bool, err error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultOptional)
	if err != nil {
		return v, false, err
	}
	items, err := convert[T](method, res.Items)
	if err != nil || len(items) == 0 {
		return v, false, err
	}
	return items[0], true, nil
}

// PageOf invokes a page method.
func PageOf[T any](ctx context.Context, r *Repository, method string, args ...any) (paging.Page[T], error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultPage)
	if err != nil {
		return paging.Page[T]{}, err
	}
	items, err := convert[T](method, res.Items)
	if err != nil {
		return paging.Page[T]{}, err
	}
	return paging.NewPage(items, res.Request, res.Total), nil
}

// SliceOf invokes a slice method.
func SliceOf[T any](ctx context.Context, r *Repository, method string, args ...any) (paging.Slice[T], error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultSlice)
	if err != nil {
		return paging.Slice[T]{}, err
	}
	items, err := convert[T](method, res.Items)
	if err != nil {
		return paging.Slice[T]{}, err
	}
	return paging.NewSlice(items, res.Request, res.HasNext), nil
}

// Count invokes a count method.
func Count(ctx context.Context, r *Repository, method string, args ...any) (int64, error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultCount)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Exists invokes an exists method.
func Exists(ctx context.Context, r *Repository, method string, args ...any) (bool, error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultExists)
	if err != nil {
		return false, err
	}
	return res.Exists, nil
}

// Modify invokes a modifying method and returns the affected row count.
func Modify(ctx context.Context, r *Repository, method string, args ...any) (int64, error) {
	res, err := r.invokeKind(ctx, method, args, plan.ResultModifying)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// invokeKind checks the method's result kind before executing it.
func (r *Repository) invokeKind(ctx context.Context, method string, args []any, want plan.ResultKind) (*engine.Result, error) {
	spec, ok := r.specs[method]
	if !ok {
		return nil, &UnknownMethodError{Repository: r.name, Method: method}
	}
	got := plan.ResultModifying
	if q, isQuery := spec.(*plan.QuerySpec); isQuery {
		got = q.Result
	}
	if got != want {
		return nil, fmt.Errorf("%s.%s returns %s, not %s", r.name, method, got, want)
	}
	return r.exec.Execute(ctx, spec, args)
}

func convert[T any](method string, items []any) ([]T, error) {
	out := make([]T, len(items))
	for i, it := range items {
		v, ok := it.(T)
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %T, not %T", method, i, it, out[i])
		}
		out[i] = v
	}
	return out, nil
}
