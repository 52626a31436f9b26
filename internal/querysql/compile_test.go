package querysql

import (
	"database/sql"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/provider"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

func testCompiler(t *testing.T) *Compiler {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Entity{
			Name: "Member",
			Properties: []schema.Property{
				{Name: "id", Kind: schema.KindInt},
				{Name: "username", Kind: schema.KindString},
				{Name: "age", Kind: schema.KindInt},
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
	require.NoError(t, err)
	return NewCompiler(reg)
}

func leaf(path string, op queryir.Operator, param int) queryir.Comparison {
	return queryir.Comparison{Path: schema.ParsePath(path), Operator: op, Param: param}
}

const memberColumns = "t0.id, t0.username, t0.age, t0.team_id"

func TestCompile_Derived(t *testing.T) {
	tests := []struct {
		name string
		stmt provider.Statement
		sql  string
		args []any
	}{
		{
			name: "and",
			stmt: provider.Statement{
				Entity: "Member",
				Kind:   provider.StatementSelect,
				Predicate: queryir.Combine(queryir.And,
					leaf("username", queryir.OpEquals, 0),
					leaf("age", queryir.OpGreaterThan, 1)),
				Args: []any{"member1", int64(10)},
			},
			sql:  "SELECT " + memberColumns + " FROM member t0 WHERE t0.username = ? AND t0.age > ? ORDER BY t0.id ASC",
			args: []any{"member1", int64(10)},
		},
		{
			name: "page window with sort",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("age", queryir.OpEquals, 0),
				Args:      []any{int64(10), nil},
				Sort:      queryir.By(queryir.Desc, "username"),
				Limit:     3,
				Offset:    0,
			},
			sql:  "SELECT " + memberColumns + " FROM member t0 WHERE t0.age = ? ORDER BY t0.username DESC, t0.id ASC LIMIT ? OFFSET ?",
			args: []any{int64(10), int64(3), int64(0)},
		},
		{
			name: "offset without limit",
			stmt: provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Offset: 5},
			sql:  "SELECT " + memberColumns + " FROM member t0 ORDER BY t0.id ASC LIMIT -1 OFFSET ?",
			args: []any{int64(5)},
		},
		{
			name: "null equality",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("username", queryir.OpEquals, 0),
				Args:      []any{nil},
			},
			sql: "SELECT " + memberColumns + " FROM member t0 WHERE t0.username IS NULL ORDER BY t0.id ASC",
		},
		{
			name: "nested or",
			stmt: provider.Statement{
				Entity: "Member",
				Kind:   provider.StatementSelect,
				Predicate: queryir.Combine(queryir.Or,
					queryir.Combine(queryir.And,
						leaf("username", queryir.OpLike, 0),
						leaf("age", queryir.OpLessThanEqual, 1)),
					leaf("team", queryir.OpIsNull, queryir.NoParam)),
				Args: []any{"mem%", int64(30)},
			},
			sql:  "SELECT " + memberColumns + " FROM member t0 WHERE (t0.username LIKE ? AND t0.age <= ?) OR t0.team_id IS NULL ORDER BY t0.id ASC",
			args: []any{"mem%", int64(30)},
		},
		{
			name: "in list",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("username", queryir.OpIn, 0),
				Args:      []any{[]string{"a", "b"}},
			},
			sql:  "SELECT " + memberColumns + " FROM member t0 WHERE t0.username IN (?, ?) ORDER BY t0.id ASC",
			args: []any{"a", "b"},
		},
		{
			name: "empty in list",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("username", queryir.OpIn, 0),
				Args:      []any{[]string{}},
			},
			sql: "SELECT " + memberColumns + " FROM member t0 WHERE 1 = 0 ORDER BY t0.id ASC",
		},
		{
			name: "empty not in list",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("age", queryir.OpNotIn, 0),
				Args:      []any{[]any{}},
			},
			sql: "SELECT " + memberColumns + " FROM member t0 WHERE 1 = 1 ORDER BY t0.id ASC",
		},
		{
			name: "distinct",
			stmt: provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Distinct: true, Limit: 1},
			sql:  "SELECT DISTINCT " + memberColumns + " FROM member t0 ORDER BY t0.id ASC LIMIT ? OFFSET ?",
			args: []any{int64(1), int64(0)},
		},
		{
			name: "count",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementCount,
				Predicate: leaf("age", queryir.OpEquals, 0),
				Args:      []any{int64(10)},
				Sort:      queryir.By(queryir.Desc, "username"),
				Limit:     3,
			},
			sql:  "SELECT COUNT(*) FROM member t0 WHERE t0.age = ?",
			args: []any{int64(10)},
		},
		{
			name: "count through to-many",
			stmt: provider.Statement{
				Entity:    "Team",
				Kind:      provider.StatementCount,
				Predicate: leaf("members.username", queryir.OpEquals, 0),
				Args:      []any{"member1"},
			},
			sql:  "SELECT COUNT(DISTINCT t0.id) FROM team t0 LEFT JOIN member t1 ON t1.team_id = t0.id WHERE t1.username = ?",
			args: []any{"member1"},
		},
		{
			name: "exists",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementExists,
				Predicate: leaf("username", queryir.OpEquals, 0),
				Args:      []any{"member1"},
			},
			sql:  "SELECT 1 FROM member t0 WHERE t0.username = ? LIMIT 1",
			args: []any{"member1"},
		},
		{
			name: "delete",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementDelete,
				Predicate: leaf("age", queryir.OpGreaterThan, 0),
				Args:      []any{int64(20)},
			},
			sql:  "DELETE FROM member WHERE id IN (SELECT t0.id FROM member t0 WHERE t0.age > ?)",
			args: []any{int64(20)},
		},
		{
			name: "dto columns",
			stmt: provider.Statement{
				Entity:  "Member",
				Kind:    provider.StatementSelect,
				Columns: []schema.Path{{"id"}, {"username"}, {"team", "name"}},
			},
			sql: "SELECT t0.id, t0.username, t1.name FROM member t0 LEFT JOIN team t1 ON t1.id = t0.team_id ORDER BY t0.id ASC",
		},
	}

	c := testCompiler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Compile(&tt.stmt)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.SQL)
			assert.Equal(t, tt.args, q.Args)
		})
	}
}

func TestCompile_OrderByMandatory(t *testing.T) {
	c := testCompiler(t)
	stmts := []provider.Statement{
		{Entity: "Member", Kind: provider.StatementSelect},
		{Entity: "Member", Kind: provider.StatementSelect, Sort: queryir.By(queryir.Asc, "age")},
		{Entity: "Member", Kind: provider.StatementSelect, Fetch: []schema.Path{{"team"}}},
		{Entity: "Member", Kind: provider.StatementSelect, Text: "select m.* from member m"},
	}
	for _, stmt := range stmts {
		q, err := c.Compile(&stmt)
		require.NoError(t, err)
		assert.Contains(t, q.SQL, "ORDER BY")
		assert.Contains(t, q.SQL, "t0.id ASC")
	}
}

func TestCompile_SortByIDNotRepeated(t *testing.T) {
	c := testCompiler(t)
	q, err := c.Compile(&provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Sort: queryir.By(queryir.Desc, "id")})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+memberColumns+" FROM member t0 ORDER BY t0.id DESC", q.SQL)
}

func TestCompile_Segments(t *testing.T) {
	c := testCompiler(t)

	q, err := c.Compile(&provider.Statement{
		Entity: "Team",
		Kind:   provider.StatementSelect,
		Fetch:  []schema.Path{{"members", "team"}, {"members"}},
	})
	require.NoError(t, err)

	require.Len(t, q.Segments, 3)
	assert.Equal(t, "Team", q.Segments[0].Entity.Name)
	assert.Equal(t, -1, q.Segments[0].Parent)
	assert.Equal(t, "members", q.Segments[1].Path.String())
	assert.Equal(t, 0, q.Segments[1].Parent)
	assert.Equal(t, "members.team", q.Segments[2].Path.String())
	assert.Equal(t, 1, q.Segments[2].Parent)
	assert.Equal(t, "team", q.Segments[2].Association.Name)
}

func TestCompile_Override(t *testing.T) {
	c := testCompiler(t)

	t.Run("raw", func(t *testing.T) {
		q, err := c.Compile(&provider.Statement{
			Entity: "Member",
			Kind:   provider.StatementCount,
			Text:   "select count(*) from member where age = :age",
			Named:  map[string]any{"age": int64(10)},
			Raw:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "select count(*) from member where age = :age", q.SQL)
		assert.Equal(t, []any{sql.Named("age", int64(10))}, q.Args)
	})

	t.Run("mutation", func(t *testing.T) {
		q, err := c.Compile(&provider.Statement{
			Entity: "Member",
			Kind:   provider.StatementMutation,
			Text:   "update member set age = age + 1 where age >= :age or age = :age",
			Named:  map[string]any{"age": int64(20)},
		})
		require.NoError(t, err)
		assert.Equal(t, "update member set age = age + 1 where age >= :age or age = :age", q.SQL)
		assert.Equal(t, []any{sql.Named("age", int64(20))}, q.Args)
	})

	t.Run("projected", func(t *testing.T) {
		q, err := c.Compile(&provider.Statement{
			Entity:    "Member",
			Kind:      provider.StatementSelect,
			Text:      "select username from member",
			Projected: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT t0.* FROM (select username from member) t0", q.SQL)
		assert.Empty(t, q.Args)
	})

	t.Run("count wraps", func(t *testing.T) {
		q, err := c.Compile(&provider.Statement{
			Entity: "Member",
			Kind:   provider.StatementCount,
			Text:   "select m.* from member m",
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) FROM (select m.* from member m) t0", q.SQL)
	})

	t.Run("empty list", func(t *testing.T) {
		q, err := c.Compile(&provider.Statement{
			Entity: "Member",
			Kind:   provider.StatementSelect,
			Text:   "select m.* from member m where m.username in :names",
			Named:  map[string]any{"names": []string{}},
		})
		require.NoError(t, err)
		assert.Contains(t, q.SQL, "m.username in ()")
	})
}

func TestCompile_Golden(t *testing.T) {
	tests := []struct {
		name string
		stmt provider.Statement
		args []any
	}{
		{
			name: "member_fetch_team",
			stmt: provider.Statement{
				Entity:    "Member",
				Kind:      provider.StatementSelect,
				Predicate: leaf("team.name", queryir.OpEquals, 0),
				Args:      []any{"teamA"},
				Fetch:     []schema.Path{{"team"}},
			},
			args: []any{"teamA"},
		},
		{
			name: "team_fetch_members",
			stmt: provider.Statement{
				Entity: "Team",
				Kind:   provider.StatementSelect,
				Fetch:  []schema.Path{{"members"}},
			},
		},
		{
			name: "override_window",
			stmt: provider.Statement{
				Entity: "Member",
				Kind:   provider.StatementSelect,
				Text:   "select m.* from member m where m.username in :names and m.age = :age",
				Named:  map[string]any{"names": []string{"a", "b"}, "age": int64(10)},
				Sort:   queryir.By(queryir.Desc, "age"),
				Limit:  2,
			},
			args: []any{
				sql.Named("names_0", "a"),
				sql.Named("names_1", "b"),
				sql.Named("age", int64(10)),
				sql.Named("repokit_limit", int64(2)),
				sql.Named("repokit_offset", int64(0)),
			},
		},
	}

	c := testCompiler(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Compile(&tt.stmt)
			require.NoError(t, err)
			assert.Equal(t, tt.args, q.Args)
			g.Assert(t, tt.name, []byte(q.SQL+"\n"))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		stmt provider.Statement
	}{
		{"unknown entity", provider.Statement{Entity: "Nope", Kind: provider.StatementSelect}},
		{"missing argument", provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Predicate: leaf("age", queryir.OpEquals, 0)}},
		{"list argument is scalar", provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Predicate: leaf("age", queryir.OpIn, 0), Args: []any{int64(1)}}},
		{"sort by association", provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Sort: queryir.By(queryir.Asc, "team")}},
		{"unknown sort path", provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Sort: queryir.By(queryir.Asc, "nickname")}},
		{"missing placeholder value", provider.Statement{Entity: "Member", Kind: provider.StatementSelect, Text: "select m.* from member m where m.age = :age"}},
		{"override delete", provider.Statement{Entity: "Member", Kind: provider.StatementDelete, Text: "select m.* from member m"}},
		{"unknown kind", provider.Statement{Entity: "Member", Kind: "merge"}},
	}

	c := testCompiler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(&tt.stmt)
			assert.Error(t, err)
		})
	}

	_, err := c.Compile(nil)
	assert.Error(t, err)
}
