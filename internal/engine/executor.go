package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/projection"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/telemetry"
)

// singleCap bounds single and optional reads: two rows are enough to tell
// one result from many.
const singleCap = 2

// Query runs a read spec.
//
// Steps:
//  1. Validate arguments and pull out the paging request and sort argument
//  2. Resolve the sort: argument, then request, then the method name
//  3. Compute the row window from the result kind, request and result cap
//  4. Run the count query first for page results; a zero total skips step 5
//  5. Run the main query on the unit of work from ctx, or an implicit one
//  6. Project tuples and build the result envelope
//
// Provider errors are wrapped with %w and never retried.
func (e *Executor) Query(ctx context.Context, spec *plan.QuerySpec, args []any) (res *Result, err error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, e.tracer, telemetry.SpanQuery, spec.Method, string(spec.Result))
	defer func() {
		rows := 0
		if res != nil {
			rows = len(res.Items)
		}
		telemetry.End(span, err, attribute.Int("repokit.rows", rows))
		e.metrics.ObserveQuery(spec.Method, string(spec.Result), err, time.Since(start))
	}()

	inv, err := bindArgs(spec.Method, spec.Params, args)
	if err != nil {
		return nil, err
	}

	var fromRequest queryir.Sort
	if inv.request != nil {
		fromRequest = inv.request.Sort()
	}
	sort := paging.ResolveSort(inv.sort, fromRequest, spec.Sort)
	if err := e.checkSort(spec, sort); err != nil {
		return nil, err
	}

	uow, release, err := e.unitOfWork(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin unit of work: %w", spec.Method, err)
	}
	defer release()

	switch spec.Result {
	case plan.ResultCount:
		n, err := e.count(ctx, uow, spec, inv, false)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: spec.Result, Count: n}, nil
	case plan.ResultExists:
		ok, err := e.exists(ctx, uow, spec, inv)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: spec.Result, Exists: ok}, nil
	}

	res = &Result{Kind: spec.Result, Items: []any{}}
	if inv.request != nil {
		res.Request = *inv.request
	}

	if spec.Result == plan.ResultPage {
		total, err := e.count(ctx, uow, spec, inv, true)
		if err != nil {
			return nil, err
		}
		if spec.Limit > 0 && total > int64(spec.Limit) {
			total = int64(spec.Limit)
		}
		res.Total = total
		if total == 0 {
			return res, nil
		}
	}

	w, empty := window(spec, inv.request)
	if empty {
		return res, nil
	}
	items, err := e.fetch(ctx, uow, spec, inv, sort, w)
	if err != nil {
		return nil, err
	}

	switch spec.Result {
	case plan.ResultSlice:
		if len(items) > inv.request.Size() {
			res.HasNext = true
			items = items[:inv.request.Size()]
		}
	case plan.ResultSingle, plan.ResultOptional:
		if len(items) > 1 {
			return nil, &NonUniqueResultError{Method: spec.Method, Count: len(items)}
		}
		if len(items) == 0 && spec.Result == plan.ResultSingle {
			return nil, &NoResultError{Method: spec.Method}
		}
	}
	res.Items = items
	return res, nil
}

// window computes the rows to fetch. empty is set when the result cap is
// already exhausted by the request's offset.
func window(spec *plan.QuerySpec, req *paging.Request) (w paging.Window, empty bool) {
	switch {
	case spec.Result == plan.ResultSlice:
		w = paging.SliceWindow(*req)
	case req != nil:
		w = paging.PageWindow(*req)
	}
	if spec.Limit > 0 {
		remaining := spec.Limit - w.Offset
		if remaining <= 0 {
			return w, true
		}
		w = w.Cap(remaining)
	}
	if (spec.Result == plan.ResultSingle || spec.Result == plan.ResultOptional) && !spec.FetchToMany {
		w = w.Cap(singleCap)
	}
	return w, false
}

// fetch runs the main select and projects its rows.
func (e *Executor) fetch(ctx context.Context, uow provider.UnitOfWork, spec *plan.QuerySpec, inv *invocation, sort queryir.Sort, w paging.Window) ([]any, error) {
	stmt := statement(spec, inv, provider.StatementSelect)
	stmt.Sort = sort
	stmt.Fetch = spec.FetchPaths
	stmt.Columns = spec.Projection.Columns

	inMemory := spec.InMemoryPaging && (w.Offset > 0 || w.Limit > 0)
	if !inMemory {
		stmt.Offset, stmt.Limit = int64(w.Offset), int64(w.Limit)
	}
	if spec.IsOverride() && spec.Projection.Kind != plan.ProjectEntity {
		// non-entity rows are returned as selected unless the provider has
		// to sort or window them
		if len(sort) == 0 && stmt.Limit == 0 && stmt.Offset == 0 {
			stmt.Raw = true
		} else {
			stmt.Projected = true
		}
	}

	tuples, err := uow.Execute(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Method, err)
	}
	items, err := projection.NewMapper(spec.Projection).MapAll(tuples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Method, err)
	}
	if inMemory {
		e.logger.Warn("applying window in memory",
			"method", spec.Method,
			"rows", len(items),
			"offset", w.Offset,
			"limit", w.Limit)
		items = paging.Apply(items, w)
	}

	e.logger.Debug("query executed",
		"method", spec.Method,
		"result", string(spec.Result),
		"uow", uow.ID(),
		"rows", len(items))
	return items, nil
}

// count runs the count query of a count or page result. forPage selects the
// page form: the count override text and the counting hints.
func (e *Executor) count(ctx context.Context, uow provider.UnitOfWork, spec *plan.QuerySpec, inv *invocation, forPage bool) (int64, error) {
	stmt := statement(spec, inv, provider.StatementCount)
	stmt.Lock = queryir.LockNone
	switch {
	case forPage && spec.CountOverrideText != "":
		stmt.Text = spec.CountOverrideText
		stmt.Named = named(spec.Params, inv.args, spec.CountPlaceholders)
		stmt.Raw = true
	case !forPage && spec.IsOverride():
		// a count method's own text already selects the count
		stmt.Raw = true
	}
	if forPage {
		stmt.Hints = spec.CountHints
	}

	tuples, err := uow.Execute(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", spec.Method, err)
	}
	if len(tuples) == 0 || len(tuples[0]) == 0 {
		return 0, nil
	}
	v, err := projection.Coerce(tuples[0][0], schema.KindInt)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", spec.Method, err)
	}
	if v == nil {
		return 0, nil
	}
	return v.(int64), nil
}

// exists runs an exists method. Override text selects one value whose
// truthiness is the answer; no row means false.
func (e *Executor) exists(ctx context.Context, uow provider.UnitOfWork, spec *plan.QuerySpec, inv *invocation) (bool, error) {
	stmt := statement(spec, inv, provider.StatementExists)
	if spec.IsOverride() {
		stmt.Kind = provider.StatementSelect
		stmt.Raw = true
	}
	tuples, err := uow.Execute(ctx, stmt)
	if err != nil {
		return false, fmt.Errorf("%s: exists: %w", spec.Method, err)
	}
	if len(tuples) == 0 {
		return false, nil
	}
	if !spec.IsOverride() {
		return true, nil
	}
	v, err := projection.Coerce(tuples[0][0], schema.KindBool)
	if err != nil {
		return false, fmt.Errorf("%s: exists: %w", spec.Method, err)
	}
	ok, _ := v.(bool)
	return ok, nil
}

// statement builds the provider statement shared by every query of spec.
func statement(spec *plan.QuerySpec, inv *invocation, kind provider.StatementKind) *provider.Statement {
	stmt := &provider.Statement{
		Method:   spec.Method,
		Entity:   spec.Entity,
		Kind:     kind,
		Distinct: spec.Distinct,
		Lock:     spec.Lock,
		Hints:    spec.Hints,
	}
	if spec.IsOverride() {
		stmt.Text = spec.OverrideText
		stmt.Named = named(spec.Params, inv.args, spec.Placeholders)
	} else {
		stmt.Predicate = spec.Predicate
		stmt.Args = inv.args
	}
	return stmt
}

// named maps each placeholder to the argument of the parameter it names.
func named(params []queryir.Param, args []any, placeholders []string) map[string]any {
	out := make(map[string]any, len(placeholders))
	for _, name := range placeholders {
		for i, p := range params {
			if p.Name == name {
				out[name] = args[i]
				break
			}
		}
	}
	return out
}

// checkSort validates runtime sort paths against the spec's entity.
func (e *Executor) checkSort(spec *plan.QuerySpec, sort queryir.Sort) error {
	for _, o := range sort {
		res, err := e.reg.Resolve(spec.Entity, o.Path)
		if err != nil {
			return &InvalidSortError{Method: spec.Method, Path: o.Path, Reason: err.Error()}
		}
		if !res.IsScalar() {
			return &InvalidSortError{Method: spec.Method, Path: o.Path, Reason: "not a scalar property"}
		}
		if res.TraversesToMany() {
			return &InvalidSortError{Method: spec.Method, Path: o.Path, Reason: "traverses a to-many association"}
		}
	}
	return nil
}
