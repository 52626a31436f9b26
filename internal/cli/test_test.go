package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies a scenario file into a fresh directory, pointing its
// specs at the shared declarations.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name+".yaml"))
	require.NoError(t, err)
	abs, err := filepath.Abs(specsDir)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "specs: ../specs", "specs: "+abs, 1))

	dir := t.TempDir()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestTest_ScenarioDirectory(t *testing.T) {
	out, _, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ member_paging")
	assert.Contains(t, out, "✓ member_repository")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTest_JSON(t *testing.T) {
	out, _, err := execute(t, "test", "--format", "json", "--filter", "member_pag*", scenariosDir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "member_paging", resp.Data.Scenarios[0].Name)
	assert.Len(t, resp.Data.Scenarios[0].Fingerprint, 64)
}

func TestTest_GoldenUpdateAndMismatch(t *testing.T) {
	path := copyScenario(t, "member_paging")
	golden := filepath.Join(filepath.Dir(path), "golden", "member_paging.golden")

	out, _, err := execute(t, "test", "--update", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ member_paging (golden updated)")

	written, err := os.ReadFile(golden)
	require.NoError(t, err)
	shared, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "member_paging.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(shared), string(written))

	_, _, err = execute(t, "test", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"member_paging","trace":[]}`), 0o644))
	out, _, err = execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ member_paging")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(specsDir)
	require.NoError(t, err)
	content := "name: failing\ndescription: wrong count\nspecs: " + abs + `
steps:
  - invoke: MemberRepository.count
    expect: { count: 1 }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, _, err := execute(t, "test", "--format", "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "broken.yaml")
	assert.Contains(t, byName["broken.yaml"].Errors[0], "failed to load scenario")
	require.Contains(t, byName, "failing")
	assert.Contains(t, byName["failing"].Errors[0], "count mismatch")
}

func TestTest_PathErrors(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")

	_, _, err = execute(t, "test", "--filter", "[", scenariosDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")

	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "c.golden"), goldenFilePath(filepath.Join("a", "b", "c.yaml")))
}
