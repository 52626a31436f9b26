package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/derive"
	"github.com/roach88/repokit/internal/engine"
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/store"
	"github.com/roach88/repokit/internal/testutil"
)

func memberDecl() Declaration {
	return Declaration{
		Name:   "MemberRepository",
		Entity: "Member",
		Methods: []plan.MethodDecl{
			{Name: "findByAgeGreaterThan", Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}},
			{Name: "findByUsername", Params: []queryir.Param{{Name: "username", Type: queryir.ParamString}}, Returns: plan.Returns{Kind: plan.ResultSingle}},
			{Name: "findFirstByAge", Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}, Returns: plan.Returns{Kind: plan.ResultOptional}},
			{
				Name:    "findByAge",
				Params:  []queryir.Param{{Name: "age", Type: queryir.ParamInt}, {Name: "pageable", Type: queryir.ParamPaging}},
				Returns: plan.Returns{Kind: plan.ResultPage},
			},
			{
				Name:    "findByActive",
				Params:  []queryir.Param{{Name: "active", Type: queryir.ParamBool}, {Name: "pageable", Type: queryir.ParamPaging}},
				Returns: plan.Returns{Kind: plan.ResultSlice},
			},
			{Name: "countByAge", Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}},
			{Name: "existsByUsername", Params: []queryir.Param{{Name: "username", Type: queryir.ParamString}}},
			{Name: "findDtoBy", Returns: plan.Returns{Of: "MemberDto"}},
			{
				Name:       "bulkAgePlus",
				Params:     []queryir.Param{{Name: "age", Type: queryir.ParamInt}},
				Query:      "update member set age = age + 1 where age >= :age",
				Modifying:  true,
				Invalidate: plan.InvalidateAll,
			},
		},
	}
}

func setup(t *testing.T, ages ...int64) (*Repository, *store.Store) {
	t.Helper()
	reg := testutil.Registry(t)
	s := testutil.OpenStore(t, reg)
	if len(ages) > 0 {
		testutil.SeedMembers(t, s, ages...)
	}
	r, err := New(memberDecl(), reg, testutil.DTOs(t), s, WithLogger(testutil.Quiet()))
	require.NoError(t, err)
	return r, s
}

func usernames(t *testing.T, recs []*schema.Record) []string {
	t.Helper()
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.Get("username").(string)
	}
	return out
}

func TestNew_MethodTable(t *testing.T) {
	r, _ := setup(t)
	assert.Equal(t, "MemberRepository", r.Name())
	assert.Equal(t, "Member", r.Entity())
	assert.Equal(t, []string{
		"bulkAgePlus", "count", "countByAge", "existsByUsername", "findAll",
		"findByActive", "findByAge", "findByAgeGreaterThan", "findByUsername",
		"findDtoBy", "findFirstByAge",
	}, r.Methods())

	spec, ok := r.Spec("bulkAgePlus")
	require.True(t, ok)
	assert.IsType(t, &plan.BulkMutationSpec{}, spec)
}

func TestNew_DeclaredMethodReplacesBuiltin(t *testing.T) {
	reg := testutil.Registry(t)
	s := testutil.OpenStore(t, reg)
	testutil.SeedMembers(t, s, 10, 20)
	decl := Declaration{Entity: "Member", Methods: []plan.MethodDecl{
		{Name: "findAll", Returns: plan.Returns{Of: "MemberDto"}},
	}}
	r, err := New(decl, reg, testutil.DTOs(t), s, WithLogger(testutil.Quiet()))
	require.NoError(t, err)
	assert.Equal(t, "MemberRepository", r.Name())

	dtos, err := List[testutil.MemberDto](context.Background(), r, "findAll")
	require.NoError(t, err)
	assert.Len(t, dtos, 2)

	// the CRUD form still returns entities
	recs, err := r.FindAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"member1", "member2"}, usernames(t, recs))
}

func TestNew_JoinsBindErrors(t *testing.T) {
	reg := testutil.Registry(t)
	s := testutil.OpenStore(t, reg)
	decl := Declaration{Name: "Broken", Entity: "Member", Methods: []plan.MethodDecl{
		{Name: "findByNickname", Params: []queryir.Param{{Name: "nickname", Type: queryir.ParamString}}},
		{Name: "findByAge", Returns: plan.Returns{Kind: plan.ResultPage}, Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}},
		{Name: "countByAge", Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}},
		{Name: "countByAge", Params: []queryir.Param{{Name: "age", Type: queryir.ParamInt}}},
	}}

	_, err := New(decl, reg, testutil.DTOs(t), s, WithLogger(testutil.Quiet()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository Broken")

	var nameErr *derive.UnresolvableMethodNameError
	assert.ErrorAs(t, err, &nameErr)
	var shapeErr *plan.ResultShapeError
	assert.ErrorAs(t, err, &shapeErr)
	var declErr *plan.InvalidDeclarationError
	require.ErrorAs(t, err, &declErr)
	assert.Equal(t, "countByAge", declErr.Method)

	_, err = New(Declaration{Entity: "Nope"}, reg, testutil.DTOs(t), s)
	assert.ErrorContains(t, err, `unknown entity "Nope"`)
}

func TestInvoke_UnknownMethod(t *testing.T) {
	r, _ := setup(t)
	_, err := r.Invoke(context.Background(), "findByNothing")
	var unknown *UnknownMethodError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, CodeUnknownMethod, unknown.ErrorCode())

	_, err = Count(context.Background(), r, "findByNothing")
	assert.ErrorAs(t, err, &unknown)
}

func TestTypedHelpers(t *testing.T) {
	r, _ := setup(t, 10, 20, 20, 30)
	ctx := context.Background()

	recs, err := List[*schema.Record](ctx, r, "findByAgeGreaterThan", 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"member2", "member3", "member4"}, usernames(t, recs))

	one, err := One[*schema.Record](ctx, r, "findByUsername", "member4")
	require.NoError(t, err)
	assert.Equal(t, int64(30), one.Get("age"))

	_, err = One[*schema.Record](ctx, r, "findByUsername", "nobody")
	assert.True(t, engine.IsNoResult(err))

	first, ok, err := Optional[*schema.Record](ctx, r, "findFirstByAge", 20)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "member2", first.Get("username"))

	_, ok, err = Optional[*schema.Record](ctx, r, "findFirstByAge", 99)
	require.NoError(t, err)
	assert.False(t, ok)

	page, err := PageOf[*schema.Record](ctx, r, "findByAge", 20, paging.MustRequest(0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalElements())
	assert.Equal(t, 2, page.TotalPages())
	assert.True(t, page.HasNext())
	assert.Equal(t, []string{"member2"}, usernames(t, page.Content))

	slice, err := SliceOf[*schema.Record](ctx, r, "findByActive", true, paging.MustRequest(0, 1))
	require.NoError(t, err)
	assert.True(t, slice.HasNext())
	assert.Equal(t, []string{"member1"}, usernames(t, slice.Content))

	n, err := Count(ctx, r, "countByAge", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	exists, err := Exists(ctx, r, "existsByUsername", "member3")
	require.NoError(t, err)
	assert.True(t, exists)

	dtos, err := List[testutil.MemberDto](ctx, r, "findDtoBy")
	require.NoError(t, err)
	assert.Equal(t, testutil.MemberDto{ID: 4, Username: "member4", TeamName: "teamB"}, dtos[3])
}

func TestDtoProjection_RoundTrip(t *testing.T) {
	r, s := setup(t, 10, 20, 30)
	ctx, uow := testutil.Transactional(t, s)
	team, ok := testutil.Registry(t).Entity("Team")
	require.True(t, ok)

	dtos, err := List[testutil.MemberDto](ctx, r, "findDtoBy")
	require.NoError(t, err)
	require.Len(t, dtos, 3)

	for _, dto := range dtos {
		rec, found, err := r.FindByID(ctx, dto.ID)
		require.NoError(t, err)
		require.True(t, found, "member %d", dto.ID)
		assert.Equal(t, dto.ID, rec.Get("id"))
		assert.Equal(t, dto.Username, rec.Get("username"))

		teamID, ok := rec.ForeignKey("team", team).(int64)
		require.True(t, ok, "member %d has a team", dto.ID)
		teamRec, found, err := uow.Find(ctx, "Team", teamID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, dto.TeamName, teamRec.Get("name"))
	}
}

func TestTypedHelpers_Mismatch(t *testing.T) {
	r, _ := setup(t, 10)
	ctx := context.Background()

	_, err := Count(ctx, r, "findByAgeGreaterThan", 1)
	assert.ErrorContains(t, err, "returns list, not count")

	_, err = List[testutil.MemberDto](ctx, r, "findByAgeGreaterThan", 1)
	assert.ErrorContains(t, err, "element 0 is *schema.Record")
}

func TestModify(t *testing.T) {
	r, s := setup(t, 10, 20, 30)

	_, err := Modify(context.Background(), r, "bulkAgePlus", 20)
	var txErr *engine.NoActiveTransactionError
	require.ErrorAs(t, err, &txErr)

	err = WithinUnitOfWork(context.Background(), s, func(ctx context.Context) error {
		n, err := Modify(ctx, r, "bulkAgePlus", 20)
		assert.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)

	n, err := Count(context.Background(), r, "countByAge", 31)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCRUD(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	m := schema.NewRecord("Member", map[string]any{"username": "ann", "age": int64(33), "active": true})
	require.NoError(t, r.Save(ctx, m))
	id, ok := m.Get("id").(int64)
	require.True(t, ok)

	got, found, err := r.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ann", got.Get("username"))

	got.Set("age", int64(34))
	require.NoError(t, r.Save(ctx, got))
	got, _, err = r.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(34), got.Get("age"))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, r.Delete(ctx, got))
	_, found, err = r.FindByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	err = r.Save(ctx, schema.NewRecord("Team", map[string]any{"name": "x"}))
	assert.ErrorContains(t, err, "cannot save Team")
}

func TestWithinUnitOfWork(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithinUnitOfWork(ctx, s, func(ctx context.Context) error {
		require.NoError(t, r.Save(ctx, schema.NewRecord("Member", map[string]any{"username": "gone", "age": int64(1), "active": false})))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = WithinUnitOfWork(ctx, s, func(ctx context.Context) error {
			_ = r.Save(ctx, schema.NewRecord("Member", map[string]any{"username": "gone", "age": int64(2), "active": false}))
			panic("kaboom")
		})
	})

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "both units rolled back")

	err = WithinUnitOfWork(ctx, s, func(ctx context.Context) error {
		return r.Save(ctx, schema.NewRecord("Member", map[string]any{"username": "kept", "age": int64(3), "active": true}))
	})
	require.NoError(t, err)
	n, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWithinUnitOfWork_FailedCommitReleasesLock(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	err := WithinUnitOfWork(ctx, s, func(ctx context.Context) error {
		m := schema.NewRecord("Member", map[string]any{"username": "bad", "age": int64(1), "active": true})
		if err := r.Save(ctx, m); err != nil {
			return err
		}
		m.Set("age", "not-an-int")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Member.age")

	done := make(chan error, 1)
	go func() {
		done <- WithinUnitOfWork(ctx, s, func(context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("next unit of work blocked on the failed one")
	}

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArguments(t *testing.T) {
	repo, _ := setup(t)
	params, err := repo.Params("findByAge")
	require.NoError(t, err)
	req := paging.MustRequest(1, 2)

	args, err := Arguments(params, []any{10}, &req, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{10, req}, args)

	_, err = Arguments(params, []any{10}, nil, nil)
	assert.ErrorContains(t, err, "paging request required")

	_, err = Arguments(params, []any{10, 11}, &req, nil)
	assert.ErrorContains(t, err, "got 2 value(s), want 1")

	_, err = Arguments(params, nil, &req, nil)
	assert.ErrorContains(t, err, "missing value")

	_, err = repo.Params("nope")
	var unknown *UnknownMethodError
	assert.ErrorAs(t, err, &unknown)
}
