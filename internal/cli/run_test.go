package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkdtools/cascade/internal/store"
)

func writeExperimentFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `package experiments

experiment: smoke: {
	key_size:   128
	error_rate: 0.05
	errors:     3
	runs:       2
	seed:       21
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smoke.cue"), []byte(content), 0644))
	return dir
}

func TestRunCommandRequiresDB(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"./experiments"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestRunCommandNonExistentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"/nonexistent/experiments", "--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load experiments")
}

func TestRunCommandExecutesAndRecords(t *testing.T) {
	experimentsDir := writeExperimentFixture(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{experimentsDir, "--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "smoke:")
	assert.Contains(t, output, "Executed 1 experiment(s).")

	// Every session must be recorded
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(context.Background(), "smoke")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, 128, r.KeySize)
		assert.Equal(t, 3, r.ErrorCount)
	}
}

func TestRunCommandJSONOutput(t *testing.T) {
	experimentsDir := writeExperimentFixture(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{experimentsDir, "--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	summaries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, summaries, 1)
	summary, ok := summaries[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "smoke", summary["experiment"])
	assert.Equal(t, float64(2), summary["runs"])
}

func TestRunCommandInvalidExperiment(t *testing.T) {
	dir := t.TempDir()
	content := `package experiments

experiment: bad: {
	key_size:   64
	error_rate: 0.05
	runs:       0
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(content), 0644))
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad")
}
