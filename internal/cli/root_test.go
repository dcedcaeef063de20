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

	"github.com/leapstack-labs/harmonize/internal/cli/commands"
	"github.com/leapstack-labs/harmonize/internal/cli/testutil"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := ExecuteArgs(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"version", "init", "doctor", "phase1", "phase2", "phase3", "run", "summary", "publish", "inspect", "codes", "completion"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "data-dir", "workers", "output", "verbose", "log-level", "metrics-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestExecute_Version(t *testing.T) {
	code, out, _ := run(t, "version")
	assert.Equal(t, commands.ExitSuccess, code)
	assert.Contains(t, out, "harmonize v"+Version)
}

func TestExecute_Completion(t *testing.T) {
	code, out, _ := run(t, "completion", "bash")
	assert.Equal(t, commands.ExitSuccess, code)
	assert.Contains(t, out, "harmonize")
}

func TestExecute_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmonize.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: xml\n"), 0o600))

	code, _, errOut := run(t, "--config", path, "codes")
	assert.Equal(t, commands.ExitCommandError, code)
	assert.Contains(t, errOut, "configuration error")
}

func TestExecute_UnknownCommand(t *testing.T) {
	code, _, _ := run(t, "frobnicate")
	assert.Equal(t, commands.ExitFailure, code)
}

func TestExecute_Pipeline(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := filepath.Join(dir, "harmonize.yaml")

	code, out, errOut := run(t, "--config", cfg, "run", "--log-level", "error")
	require.Equal(t, commands.ExitSuccess, code, errOut)

	var views []commands.ResultView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	assert.Len(t, views, 3)

	code, _, _ = run(t, "--config", cfg, "-o", "markdown", "summary")
	assert.Equal(t, commands.ExitSuccess, code)
	assert.FileExists(t, filepath.Join(dir, "summary", "data_elements.csv"))

	code, _, _ = run(t, "--config", cfg, "phase2", "--include", "s01", "--reset", "--rerun")
	assert.Equal(t, commands.ExitCommandError, code, "reset and rerun are exclusive")
}

func TestExecute_BadFlag(t *testing.T) {
	code, _, errOut := run(t, "codes", "--no-such-flag")
	assert.Equal(t, commands.ExitCommandError, code)
	assert.Contains(t, errOut, "invalid flags")
}
