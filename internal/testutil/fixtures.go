// Package testutil provides the Member/Team fixtures shared by engine,
// repository, harness and CLI tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
	"github.com/roach88/repokit/internal/store"
)

// Registry returns the Member/Team schema:
//
//	Member{id, username, age, active, team -> Team}  graph Member.all = [team]
//	Team{id, name, members <- Member.team}
func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Entity{
			Name: "Member",
			Properties: []schema.Property{
				{Name: "id", Kind: schema.KindInt},
				{Name: "username", Kind: schema.KindString},
				{Name: "age", Kind: schema.KindInt},
				{Name: "active", Kind: schema.KindBool},
			},
			Associations: []schema.Association{
				{Name: "team", Target: "Team", Cardinality: schema.ToOne},
			},
			Graphs: map[string][]string{"all": {"team"}},
		},
		schema.Entity{
			Name: "Team",
			Properties: []schema.Property{
				{Name: "id", Kind: schema.KindInt},
				{Name: "name", Kind: schema.KindString},
			},
			Associations: []schema.Association{
				{Name: "members", Target: "Member", Cardinality: schema.ToMany, MappedBy: "team"},
			},
		},
	)
	require.NoError(t, err)
	return reg
}

// MemberDto is the constructor-bound DTO of the fixtures.
type MemberDto struct {
	ID       int64
	Username string
	TeamName string
}

// DTOs registers MemberDto(id, username, teamName) with a constructor and
// UsernameView(username) without one.
func DTOs(t testing.TB) *plan.DTORegistry {
	t.Helper()
	dtos, err := plan.NewDTORegistry(
		plan.DTO{
			Name: "MemberDto",
			Params: []plan.DTOParam{
				{Name: "id", Kind: schema.KindInt},
				{Name: "username", Kind: schema.KindString},
				{Name: "teamName", Kind: schema.KindString},
			},
			New: func(values []any) (any, error) {
				dto := MemberDto{}
				dto.ID, _ = values[0].(int64)
				dto.Username, _ = values[1].(string)
				dto.TeamName, _ = values[2].(string)
				return dto, nil
			},
		},
		plan.DTO{
			Name:   "UsernameView",
			Params: []plan.DTOParam{{Name: "username", Kind: schema.KindString}},
		},
	)
	require.NoError(t, err)
	return dtos
}

// Quiet returns a logger that discards everything.
func Quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenStore opens a store on a fresh file under t.TempDir().
func OpenStore(t testing.TB, reg *schema.Registry, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithLogger(Quiet())}, opts...)
	s, err := store.Open(filepath.Join(t.TempDir(), "repokit.db"), reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedMembers commits teamA and teamB plus one member per age. Usernames are
// member1..memberN; the last member joins teamB when there is more than one,
// the rest join teamA. Members at even positions are active.
func SeedMembers(t testing.TB, p provider.Provider, ages ...int64) {
	t.Helper()
	ctx := context.Background()
	uow, err := p.Begin(ctx, provider.Options{Transactional: true})
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	teamA := schema.NewRecord("Team", map[string]any{"name": "teamA"})
	teamB := schema.NewRecord("Team", map[string]any{"name": "teamB"})
	require.NoError(t, uow.Persist(ctx, teamA))
	require.NoError(t, uow.Persist(ctx, teamB))
	for i, age := range ages {
		m := schema.NewRecord("Member", map[string]any{
			"username": fmt.Sprintf("member%d", i+1),
			"age":      age,
			"active":   i%2 == 0,
		})
		team := teamA
		if i == len(ages)-1 && len(ages) > 1 {
			team = teamB
		}
		m.Link("team", team)
		require.NoError(t, uow.Persist(ctx, m))
	}
	require.NoError(t, uow.Commit(ctx))
}

// Transactional begins a transactional unit of work, returns a context
// carrying it, and rolls it back at cleanup unless the test commits.
func Transactional(t testing.TB, p provider.Provider) (context.Context, provider.UnitOfWork) {
	t.Helper()
	ctx := context.Background()
	uow, err := p.Begin(ctx, provider.Options{Transactional: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = uow.Rollback(context.Background()) })
	return provider.WithUnitOfWork(ctx, uow), uow
}
