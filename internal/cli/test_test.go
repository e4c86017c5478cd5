package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenariosDir copies the harness scenarios into a temp dir without their
// golden files.
func scenariosDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join("..", "harness", "testdata", "scenarios")
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0644))
	}
	return dir
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := scenariosDir(t)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sleep_then_output")
	assert.FileExists(t, filepath.Join(dir, "golden", "sleep_then_output.golden"))

	out, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := scenariosDir(t)
	_, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)

	golden := filepath.Join(dir, "golden", "cross_call.golden")
	require.NoError(t, os.WriteFile(golden, []byte("scenario: cross_call\n"), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ cross_call")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenariosDir(t)

	out, err := execute(t, "--format", "json", "test", dir, "--filter", "sleep_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "sleep_then_output", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_status
description: expects the wrong status
steps:
  - invoke: {id: 1, service: cart, key: user-42, method: checkout}
assertions:
  - type: status
    id: 1
    expect: suspended
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_status.yaml"), []byte(scenario), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_status")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}
