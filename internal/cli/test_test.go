package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

// copyScenario copies a harness scenario and its graph into a fresh
// directory laid out the way the scenario expects.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{
		filepath.Join("scenarios", name+".yaml"),
		filepath.Join("graphs", "chain.cue"),
		filepath.Join("graphs", "diamond.cue"),
	} {
		data, err := os.ReadFile(filepath.Join("..", "harness", "testdata", rel))
		require.NoError(t, err)
		dst := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
		require.NoError(t, os.WriteFile(dst, data, 0o644))
	}
	return filepath.Join(root, "scenarios")
}

func TestTest_MissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTest_NonExistentDirectory(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTest_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = execute(t, "test", "--format", "json", t.TempDir())
	require.NoError(t, err)
	resp := decode[TestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.NotNil(t, resp.Data.Scenarios)
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ chain_recall")
	assert.Contains(t, out, "✓ diamond_merge")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTest_Filter(t *testing.T) {
	out, err := execute(t, "test", "--format", "json", "--filter", "diamond*", harnessScenarios)
	require.NoError(t, err)
	resp := decode[TestResult](t, out)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "diamond_merge", resp.Data.Scenarios[0].Name)
}

func TestTest_UpdateThenCompareGolden(t *testing.T) {
	dir := copyScenario(t, "diamond_merge")
	golden := filepath.Join(dir, "golden", "diamond_merge.golden")

	out, err := execute(t, "test", "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ diamond_merge (golden updated)")

	written, err := os.ReadFile(golden)
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "diamond_merge.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written), "CLI and harness goldens share one encoding")

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"stale"}`), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ diamond_merge")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_BrokenScenarioDoesNotStopOthers(t *testing.T) {
	dir := copyScenario(t, "chain_recall")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	out, err := execute(t, "test", "--format", "json", dir)
	require.Error(t, err)
	resp := decode[TestResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	assert.True(t, byName["chain_recall"].Pass)
	require.Contains(t, byName, "broken.yaml")
	assert.Contains(t, byName["broken.yaml"].Errors[0], "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.txt", filepath.Join("sub", "d.yaml")} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "[ab]")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "chain_recall.golden"),
		goldenFilePath(filepath.Join("scenarios", "chain_recall.yaml")))
}
