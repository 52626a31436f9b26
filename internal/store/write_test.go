package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/schema"
)

func TestPersist_InsertAssignsID(t *testing.T) {
	s := createTestStore(t)
	u := beginTx(t, s)
	ctx := context.Background()

	team := schema.NewRecord("Team", map[string]any{"name": "teamA"})
	require.NoError(t, u.Persist(ctx, team))
	assert.Equal(t, int64(1), team.Get("id"))

	m := schema.NewRecord("Member", map[string]any{"username": "member1", "age": 10})
	m.Link("team", team)
	require.NoError(t, u.Persist(ctx, m))
	assert.Equal(t, int64(1), m.Get("id"))
	require.NoError(t, u.Commit(ctx))

	var username string
	var age, teamID int64
	require.NoError(t, s.db.QueryRow("SELECT username, age, team_id FROM member WHERE id = 1").Scan(&username, &age, &teamID))
	assert.Equal(t, "member1", username)
	assert.Equal(t, int64(10), age)
	assert.Equal(t, int64(1), teamID)
}

func TestPersist_UpsertWithID(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10)
	ctx := context.Background()
	u := beginTx(t, s)

	detached := schema.NewRecord("Member", map[string]any{"id": int64(1), "username": "renamed", "age": int64(11)})
	require.NoError(t, u.Persist(ctx, detached))

	fresh := schema.NewRecord("Member", map[string]any{"id": int64(7), "username": "member7", "age": int64(70)})
	require.NoError(t, u.Persist(ctx, fresh))
	require.NoError(t, u.Commit(ctx))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM member").Scan(&n))
	assert.Equal(t, 2, n)

	var username string
	var teamID any
	require.NoError(t, s.db.QueryRow("SELECT username, team_id FROM member WHERE id = 1").Scan(&username, &teamID))
	assert.Equal(t, "renamed", username)
	assert.Nil(t, teamID, "merge writes every column, including the unset reference")
}

func TestPersist_ManagedIDReplacesInstance(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10)
	ctx := context.Background()
	u := beginTx(t, s)

	loaded, ok, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	require.True(t, ok)

	replacement := schema.NewRecord("Member", map[string]any{"id": int64(1), "username": "member1", "age": int64(33)})
	replacement.Link("team", loaded.Links["team"])
	require.NoError(t, u.Persist(ctx, replacement))

	found, _, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	assert.Same(t, replacement, found)

	require.NoError(t, u.Commit(ctx))
	var age int64
	require.NoError(t, s.db.QueryRow("SELECT age FROM member WHERE id = 1").Scan(&age))
	assert.Equal(t, int64(33), age)
}

func TestFlush_WritesOnlyChangedRecords(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10, 20)
	ctx := context.Background()
	u := beginTx(t, s)

	tuples, err := u.Execute(ctx, &provider.Statement{Entity: "Member", Kind: provider.StatementSelect})
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	tuples[1][0].(*schema.Record).Set("age", 21)
	tuples[0][0].(*schema.Record).Set("age", int64(10)) // unchanged value

	require.NoError(t, u.Flush(ctx))

	rows, err := u.q.QueryContext(ctx, "SELECT age FROM member ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var ages []int64
	for rows.Next() {
		var a int64
		require.NoError(t, rows.Scan(&a))
		ages = append(ages, a)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{10, 21}, ages)
}

func TestFlush_ReassignedReference(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10, 20)
	ctx := context.Background()
	u := beginTx(t, s)

	member, _, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	member.Link("team", schema.Ref{Entity: "Team", ID: 2})
	require.NoError(t, u.Commit(ctx))

	var teamID int64
	require.NoError(t, s.db.QueryRow("SELECT team_id FROM member WHERE id = 1").Scan(&teamID))
	assert.Equal(t, int64(2), teamID)
}

func TestFlush_InvalidValue(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10)
	ctx := context.Background()
	u := beginTx(t, s)

	member, _, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	member.Set("age", "ten")

	err = u.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Member.age")
}

func TestCommit_FailedFlushReleasesTransaction(t *testing.T) {
	s := createTestStore(t, WithLockWait(LockWaitFailFast, 0))
	seedMembers(t, s, 10)
	ctx := context.Background()
	u := beginTx(t, s)

	member, _, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	member.Set("age", "ten")

	err = u.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Member.age")
	assert.ErrorIs(t, u.Commit(ctx), provider.ErrClosed)

	next, err := s.Begin(ctx, provider.Options{Transactional: true})
	require.NoError(t, err, "write lock was released")
	require.NoError(t, next.Rollback(ctx))

	var age int64
	require.NoError(t, s.db.QueryRow("SELECT age FROM member WHERE id = 1").Scan(&age))
	assert.Equal(t, int64(10), age)
}

func TestFind(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10)
	ctx := context.Background()
	u := beginTx(t, s)

	rec, ok, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "member1", rec.Get("username"))

	again, _, err := u.Find(ctx, "Member", 1)
	require.NoError(t, err)
	assert.Same(t, rec, again)

	_, ok, err = u.Find(ctx, "Member", 99)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = u.Find(ctx, "Nope", 1)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := createTestStore(t)
	seedMembers(t, s, 10, 20)
	ctx := context.Background()
	u := beginTx(t, s)

	rec, _, err := u.Find(ctx, "Member", 2)
	require.NoError(t, err)
	require.NoError(t, u.Remove(ctx, rec))
	assert.Equal(t, 0, u.Identity().Len())

	_, ok, err := u.Find(ctx, "Member", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	err = u.Remove(ctx, schema.NewRecord("Member", nil))
	assert.ErrorContains(t, err, "no id")
}

func TestRollback_DiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	u := beginTx(t, s)

	require.NoError(t, u.Persist(ctx, schema.NewRecord("Team", map[string]any{"name": "gone"})))
	require.NoError(t, u.Rollback(ctx))
	require.NoError(t, u.Rollback(ctx), "second rollback is a no-op")

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM team").Scan(&n))
	assert.Zero(t, n)
}

func TestNonTransactionalUnit_Autocommits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	u, err := s.BeginUnit(ctx, provider.Options{})
	require.NoError(t, err)
	assert.False(t, u.Transactional())

	require.NoError(t, u.Persist(ctx, schema.NewRecord("Team", map[string]any{"name": "teamA"})))
	require.NoError(t, u.Rollback(ctx))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM team").Scan(&n))
	assert.Equal(t, 1, n)
}
