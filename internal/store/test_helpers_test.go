package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
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
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return reg
}

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testRegistry(t), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTx opens a transactional unit that is rolled back at cleanup unless
// the test commits it.
func beginTx(t *testing.T, s *Store) *UnitOfWork {
	t.Helper()
	u, err := s.BeginUnit(context.Background(), provider.Options{Transactional: true})
	if err != nil {
		t.Fatalf("BeginUnit() failed: %v", err)
	}
	t.Cleanup(func() { _ = u.Rollback(context.Background()) })
	return u
}

// seedMembers commits teamA (members 1..n-1) and teamB (member n) with the
// given ages; usernames are member1..memberN.
func seedMembers(t *testing.T, s *Store, ages ...int64) {
	t.Helper()
	ctx := context.Background()
	u := beginTx(t, s)

	teamA := schema.NewRecord("Team", map[string]any{"name": "teamA"})
	teamB := schema.NewRecord("Team", map[string]any{"name": "teamB"})
	for _, team := range []*schema.Record{teamA, teamB} {
		if err := u.Persist(ctx, team); err != nil {
			t.Fatalf("Persist(team) failed: %v", err)
		}
	}
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
		if err := u.Persist(ctx, m); err != nil {
			t.Fatalf("Persist(member) failed: %v", err)
		}
	}
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}
