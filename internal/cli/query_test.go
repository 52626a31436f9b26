package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/store"
	"github.com/roach88/repokit/internal/testutil"
)

// seededDatabase creates a database holding members aged 10, 20, 20 and 30;
// member1..3 belong to teamA, member4 to teamB.
func seededDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repokit.db")
	st, err := store.Open(path, testutil.Registry(t), store.WithLogger(testutil.Quiet()))
	require.NoError(t, err)
	testutil.SeedMembers(t, st, 10, 20, 20, 30)
	require.NoError(t, st.Close())
	return path
}

type queryResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Error  *CLIError      `json:"error"`
}

func queryJSON(t *testing.T, db string, args ...string) (queryResponse, error) {
	t.Helper()
	all := append([]string{"query", "--format", "json", "--db", db, specsDir}, args...)
	out, _, err := execute(t, all...)
	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp, err
}

func TestQuery_Results(t *testing.T) {
	db := seededDatabase(t)

	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{
			name: "count",
			args: []string{"MemberRepository.countByAgeGreaterThan", "15"},
			want: map[string]any{"kind": "count", "count": float64(3)},
		},
		{
			name: "exists",
			args: []string{"MemberRepository.existsByUsername", "member9"},
			want: map[string]any{"kind": "exists", "exists": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := queryJSON(t, db, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, "ok", resp.Status)
			assert.Equal(t, tt.want, resp.Data)
		})
	}
}

func TestQuery_Page(t *testing.T) {
	db := seededDatabase(t)

	resp, err := queryJSON(t, db, "MemberRepository.findByAge", "20", "--size", "1", "--sort", "username,desc")
	require.NoError(t, err)
	assert.Equal(t, "page", resp.Data["kind"])
	assert.Equal(t, float64(2), resp.Data["total"])
	assert.Equal(t, float64(2), resp.Data["total_pages"])
	assert.Equal(t, true, resp.Data["has_next"])

	items, ok := resp.Data["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "member3", items[0].(map[string]any)["username"])

	resp, err = queryJSON(t, db, "MemberRepository.findByAge", "20", "--page", "1", "--size", "1", "--sort", "username,desc")
	require.NoError(t, err)
	assert.Equal(t, false, resp.Data["has_next"])
	assert.Equal(t, "member2", resp.Data["items"].([]any)[0].(map[string]any)["username"])
}

func TestQuery_MutationCommits(t *testing.T) {
	db := seededDatabase(t)

	resp, err := queryJSON(t, db, "MemberRepository.bulkAgePlus", "20")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kind": "modifying", "affected": float64(3)}, resp.Data)

	resp, err = queryJSON(t, db, "MemberRepository.countByAgeGreaterThan", "20")
	require.NoError(t, err)
	assert.Equal(t, float64(3), resp.Data["count"])
}

func TestQuery_Errors(t *testing.T) {
	db := seededDatabase(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"no result", []string{"MemberRepository.findByUsername", "nobody"}, "NO_RESULT", ExitFailure},
		{"unknown method", []string{"MemberRepository.nope"}, "UNKNOWN_METHOD", ExitCommandError},
		{"unknown repository", []string{"NopeRepository.findAll"}, ErrCodeGeneric, ExitCommandError},
		{"bad target", []string{"findAll"}, ErrCodeGeneric, ExitCommandError},
		{"bad int", []string{"MemberRepository.countByAgeGreaterThan", "old"}, "ARGUMENT", ExitCommandError},
		{"too many args", []string{"MemberRepository.countByAgeGreaterThan", "1", "2"}, "ARGUMENT", ExitCommandError},
		{"missing arg", []string{"MemberRepository.countByAgeGreaterThan"}, "ARGUMENT", ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := queryJSON(t, db, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestQuery_Text(t *testing.T) {
	db := seededDatabase(t)

	out, _, err := execute(t, "query", "--db", db, specsDir, "MemberRepository.countByAgeGreaterThan", "15")
	require.NoError(t, err)
	assert.Equal(t, "MemberRepository.countByAgeGreaterThan -> count\n  count: 3\n", out)

	out, _, err = execute(t, "query", "--db", db, specsDir, "MemberRepository.findByUsername", "member1")
	require.NoError(t, err)
	assert.Contains(t, out, "MemberRepository.findByUsername -> single\n")
	assert.Contains(t, out, `"username":"member1"`)
}

func TestQuery_Environment(t *testing.T) {
	t.Setenv("REPOKIT_DATABASE", seededDatabase(t))
	out, _, err := execute(t, "query", specsDir, "MemberRepository.count")
	require.NoError(t, err)
	assert.Contains(t, out, "count: 4")

	t.Setenv("REPOKIT_LOCK_WAIT", "sometimes")
	out, _, err = execute(t, "query", specsDir, "MemberRepository.count")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeConfig+"]")
}

func TestQueryArguments(t *testing.T) {
	params := []queryir.Param{
		{Name: "age", Type: queryir.ParamInt},
		{Name: "active", Type: queryir.ParamBool},
		{Name: "names", Type: queryir.ParamList},
		{Name: "pageable", Type: queryir.ParamPaging},
	}
	opts := &QueryOptions{Page: 2, Size: 5, Sort: "username,desc"}

	args, err := queryArguments(params, []string{"10", "true", "a,7"}, opts)
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, int64(10), args[0])
	assert.Equal(t, true, args[1])
	assert.Equal(t, []any{"a", int64(7)}, args[2])
	req, ok := args[3].(paging.Request)
	require.True(t, ok)
	assert.Equal(t, 2, req.Index())
	assert.Equal(t, 5, req.Size())
	assert.Equal(t, "username DESC", req.Sort().String())

	sortParams := []queryir.Param{{Name: "username", Type: queryir.ParamString}, {Name: "sort", Type: queryir.ParamSort}}
	args, err = queryArguments(sortParams, []string{"x"}, &QueryOptions{Sort: "age"})
	require.NoError(t, err)
	assert.Equal(t, "x", args[0])
	assert.Len(t, args[1].(queryir.Sort), 1)

	_, err = queryArguments(params, []string{"10", "maybe", "a"}, opts)
	assert.ErrorContains(t, err, `parameter active: "maybe" is not a bool`)

	_, err = queryArguments(params, []string{"10", "true", "a"}, &QueryOptions{Size: 0})
	assert.Error(t, err)

	_, err = queryArguments(params, nil, &QueryOptions{Sort: "age,sideways"})
	assert.ErrorContains(t, err, "--sort")
}
