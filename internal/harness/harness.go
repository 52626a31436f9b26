package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/repokit/internal/compiler"
	"github.com/roach88/repokit/internal/engine"
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/repository"
	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/store"
)

// Harness executes one scenario against a fresh database.
type Harness struct {
	store  *store.Store
	reg    *schema.Registry
	repos  map[string]*repository.Repository
	logger *slog.Logger
	seq    int64
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger for the harness, store and repositories.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a new SQLite file in a temporary directory.
//
// Execution flow:
//  1. Compile the scenario's declarations and bind every repository
//  2. Persist the seed records in one committed unit of work
//  3. Execute the steps in one transactional unit of work, checking each
//     step's expectations; the unit is committed after the last step
//  4. Evaluate the assertions against the trace and the committed state
//
// Expectation and assertion failures are reported in Result.Errors. The
// returned error is reserved for failures to set up or commit the scenario.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()

	cat, err := compiler.LoadDir(scenario.Specs)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}
	reg, err := cat.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	dir, err := os.MkdirTemp("", "repokit-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"), reg, store.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	repos, err := cat.Bind(st, repository.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to bind repositories: %w", err)
	}

	h := &Harness{
		store:  st,
		reg:    reg,
		repos:  repos,
		logger: o.logger,
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{Store: st, Registry: reg, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seed persists the seed records in declaration order. Links resolve to the
// ids of earlier records.
func (h *Harness) seed(ctx context.Context, records []SeedRecord) error {
	if len(records) == 0 {
		return nil
	}
	return repository.WithinUnitOfWork(ctx, h.store, func(ctx context.Context) error {
		uow, _ := provider.FromContext(ctx)
		ids := make(map[string]int64)
		for i, sr := range records {
			e, ok := h.reg.Entity(sr.Entity)
			if !ok {
				return fmt.Errorf("seed[%d]: unknown entity %q", i, sr.Entity)
			}
			fields := make(map[string]any, len(sr.Fields))
			for k, v := range sr.Fields {
				nv, err := normalize(v)
				if err != nil {
					return fmt.Errorf("seed[%d].fields.%s: %w", i, k, err)
				}
				fields[k] = nv
			}
			rec := schema.NewRecord(e.Name, fields)
			for assoc, ref := range sr.Links {
				a, ok := e.Association(assoc)
				if !ok || a.Cardinality != schema.ToOne {
					return fmt.Errorf("seed[%d].links.%s: not a to-one association of %s", i, assoc, e.Name)
				}
				rec.Link(assoc, schema.Ref{Entity: a.Target, ID: ids[ref]})
			}
			if err := uow.Persist(ctx, rec); err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
			if sr.Ref != "" {
				id, _ := rec.ID(e)
				ids[sr.Ref] = id
			}
		}
		h.logger.Info("scenario seeded", "records", len(records))
		return nil
	})
}

// executeSteps runs every step on one transactional unit of work and commits
// it. Steps marked outside_unit run without it.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) (err error) {
	uow, err := h.store.Begin(ctx, provider.Options{Transactional: true})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := uow.Rollback(ctx); rbErr != nil {
				h.logger.Warn("rollback scenario unit of work", "error", rbErr)
			}
		}
	}()
	txCtx := provider.WithUnitOfWork(ctx, uow)

	for i, step := range steps {
		stepCtx := txCtx
		if step.OutsideUnit {
			stepCtx = ctx
		}
		if err := h.executeStep(stepCtx, i, step, result); err != nil {
			return err
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// executeStep invokes one method, traces it and checks its expectations.
// The returned error is reserved for malformed steps.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	repoName, method, err := splitMethod(step.Invoke)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}
	repo, ok := h.repos[repoName]
	if !ok {
		return fmt.Errorf("step %d: unknown repository %q", i, repoName)
	}
	params, err := repo.Params(method)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}

	values := make([]any, len(step.Args))
	for j, a := range step.Args {
		if values[j], err = normalize(a); err != nil {
			return fmt.Errorf("step %d: args[%d]: %w", i, j, err)
		}
	}
	req, sort, err := pagingArgs(step)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}
	args, err := repository.Arguments(params, values, req, sort)
	if err != nil {
		return fmt.Errorf("step %d: %s: %w", i, step.Invoke, err)
	}

	h.seq++
	result.AddInvocationTrace(step.Invoke, values, h.seq)
	res, invokeErr := repo.Invoke(ctx, method, args...)
	h.seq++

	if invokeErr != nil {
		code := engine.Code(invokeErr)
		if code == "" {
			code = "ERROR"
		}
		result.AddCompletionTrace(step.Invoke, code, nil, h.seq)
		h.logger.Info("step failed", "step", i, "method", step.Invoke, "code", code)
		switch {
		case step.Expect == nil || step.Expect.Error == "":
			result.AddError(fmt.Sprintf("step %d %s: unexpected error: %v", i, step.Invoke, invokeErr))
		case step.Expect.Error != code:
			result.AddError(fmt.Sprintf("step %d %s: error code %s, want %s (%v)", i, step.Invoke, code, step.Expect.Error, invokeErr))
		}
		return nil
	}

	summary := res.Summary()
	result.AddCompletionTrace(step.Invoke, OutcomeOK, summary, h.seq)
	h.logger.Info("step completed", "step", i, "method", step.Invoke, "kind", string(res.Kind))
	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, summary) {
			result.AddError(fmt.Sprintf("step %d %s: %s", i, step.Invoke, msg))
		}
	}
	return nil
}

// pagingArgs builds the paging request and sort argument of a step.
func pagingArgs(step Step) (*paging.Request, queryir.Sort, error) {
	sort, err := queryir.ParseSort(step.Sort)
	if err != nil {
		return nil, nil, fmt.Errorf("sort: %w", err)
	}
	if step.Page == nil {
		return nil, sort, nil
	}
	pageSort, err := queryir.ParseSort(step.Page.Sort)
	if err != nil {
		return nil, nil, fmt.Errorf("page.sort: %w", err)
	}
	req, err := paging.NewRequest(step.Page.Index, step.Page.Size, pageSort...)
	if err != nil {
		return nil, nil, fmt.Errorf("page: %w", err)
	}
	return &req, sort, nil
}

// checkExpect compares an expectation with a result summary and returns
// one message per mismatch.
func checkExpect(exp *Expect, summary map[string]any) []string {
	var errs []string
	if exp.Error != "" {
		return []string{fmt.Sprintf("succeeded, want error %s", exp.Error)}
	}

	check := func(key string, want any) {
		got, ok := summary[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: not reported by a %v result", key, summary["kind"]))
			return
		}
		if diff := cmp.Diff(want, got); diff != "" {
			errs = append(errs, fmt.Sprintf("%s mismatch (-want +got):\n%s", key, diff))
		}
	}
	if exp.Count != nil {
		check("count", *exp.Count)
	}
	if exp.Total != nil {
		check("total", *exp.Total)
	}
	if exp.TotalPages != nil {
		check("total_pages", *exp.TotalPages)
	}
	if exp.HasNext != nil {
		check("has_next", *exp.HasNext)
	}
	if exp.Exists != nil {
		check("exists", *exp.Exists)
	}
	if exp.Affected != nil {
		check("affected", *exp.Affected)
	}

	items, _ := summary["items"].([]any)
	if exp.Items != nil && len(items) != *exp.Items {
		errs = append(errs, fmt.Sprintf("items: got %d, want %d", len(items), *exp.Items))
	}
	if len(exp.First) > 0 {
		if len(items) == 0 {
			errs = append(errs, "first: no elements")
		} else if msg := matchSubset(items[0], exp.First); msg != "" {
			errs = append(errs, "first: "+msg)
		}
	}
	for field, want := range exp.Values {
		got := make([]any, len(items))
		for i, item := range items {
			if m, ok := item.(map[string]any); ok {
				got[i] = m[field]
			}
		}
		wantN, err := normalize(want)
		if err != nil {
			errs = append(errs, fmt.Sprintf("values.%s: %v", field, err))
			continue
		}
		if diff := cmp.Diff(wantN, any(got)); diff != "" {
			errs = append(errs, fmt.Sprintf("values.%s mismatch (-want +got):\n%s", field, diff))
		}
	}
	return errs
}

// matchSubset checks that item holds every key of want with an equal value.
func matchSubset(item any, want map[string]any) string {
	m, ok := item.(map[string]any)
	if !ok {
		return fmt.Sprintf("element is %T, not a record", item)
	}
	for k, w := range want {
		wn, err := normalize(w)
		if err != nil {
			return fmt.Sprintf("%s: %v", k, err)
		}
		got, ok := m[k]
		if !ok {
			return fmt.Sprintf("field %q missing", k)
		}
		if diff := cmp.Diff(wn, got); diff != "" {
			return fmt.Sprintf("%s mismatch (-want +got):\n%s", k, diff)
		}
	}
	return ""
}

// normalize converts YAML-decoded values to the plain value set: integers
// become int64; lists and maps are converted element-wise. Floats are
// rejected.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		if val == float64(int64(val)) {
			return int64(val), nil
		}
		return nil, fmt.Errorf("floats are not supported: %v", val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}
