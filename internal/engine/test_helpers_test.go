package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/store"
	"github.com/roach88/repokit/internal/testutil"
)

type fixture struct {
	reg   *schema.Registry
	dtos  *plan.DTORegistry
	store *store.Store
	rec   *recorder
	exec  *Executor
}

// setup opens a seeded store behind a recording provider.
func setup(t *testing.T, ages ...int64) *fixture {
	t.Helper()
	reg := testutil.Registry(t)
	s := testutil.OpenStore(t, reg)
	if len(ages) > 0 {
		testutil.SeedMembers(t, s, ages...)
	}
	rec := &recorder{Provider: s}
	return &fixture{
		reg:   reg,
		dtos:  testutil.DTOs(t),
		store: s,
		rec:   rec,
		exec:  New(rec, reg, WithLogger(testutil.Quiet())),
	}
}

func (f *fixture) bind(t *testing.T, root string, decl plan.MethodDecl) plan.Spec {
	t.Helper()
	spec, err := plan.Bind(decl, root, f.reg, f.dtos, plan.WithLogger(testutil.Quiet()))
	require.NoError(t, err)
	return spec
}

func (f *fixture) query(t *testing.T, decl plan.MethodDecl) *plan.QuerySpec {
	t.Helper()
	spec, ok := f.bind(t, "Member", decl).(*plan.QuerySpec)
	require.True(t, ok)
	return spec
}

func (f *fixture) mutation(t *testing.T, decl plan.MethodDecl) *plan.BulkMutationSpec {
	t.Helper()
	spec, ok := f.bind(t, "Member", decl).(*plan.BulkMutationSpec)
	require.True(t, ok)
	return spec
}

func param(name string, typ queryir.ParamType) queryir.Param {
	return queryir.Param{Name: name, Type: typ}
}

// recorder logs every statement and unit-of-work release.
type recorder struct {
	provider.Provider

	mu       sync.Mutex
	kinds    []provider.StatementKind
	released int
}

func (r *recorder) Begin(ctx context.Context, opts provider.Options) (provider.UnitOfWork, error) {
	uow, err := r.Provider.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &recordingUnit{UnitOfWork: uow, rec: r}, nil
}

func (r *recorder) statements() []provider.StatementKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]provider.StatementKind(nil), r.kinds...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = nil
	r.released = 0
}

type recordingUnit struct {
	provider.UnitOfWork
	rec *recorder
}

func (u *recordingUnit) Execute(ctx context.Context, stmt *provider.Statement) ([]provider.Tuple, error) {
	u.rec.mu.Lock()
	u.rec.kinds = append(u.rec.kinds, stmt.Kind)
	u.rec.mu.Unlock()
	return u.UnitOfWork.Execute(ctx, stmt)
}

func (u *recordingUnit) ExecuteMutation(ctx context.Context, stmt *provider.Statement) (int64, error) {
	u.rec.mu.Lock()
	u.rec.kinds = append(u.rec.kinds, stmt.Kind)
	u.rec.mu.Unlock()
	return u.UnitOfWork.ExecuteMutation(ctx, stmt)
}

func (u *recordingUnit) Rollback(ctx context.Context) error {
	u.rec.mu.Lock()
	u.rec.released++
	u.rec.mu.Unlock()
	return u.UnitOfWork.Rollback(ctx)
}

// usernames extracts usernames from entity items.
func usernames(t *testing.T, items []any) []string {
	t.Helper()
	out := []string{}
	for _, it := range items {
		rec, ok := it.(*schema.Record)
		require.True(t, ok, "item is %T", it)
		out = append(out, rec.Get("username").(string))
	}
	return out
}
