package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/harmonize/internal/config"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string)
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name: "init empty directory",
			wantFiles: []string{
				"harmonize.yaml",
				".gitignore",
				"data_harmonized/.gitkeep",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "harmonize.yaml"), []byte("existing"), 0o600)
			},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "harmonize.yaml"), []byte("existing"), 0o600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"harmonize.yaml"},
		},
		{
			name: "init example",
			args: []string{"--example"},
			wantFiles: []string{
				"harmonize.yaml",
				"reference/global.csv",
				"reference/legacy.csv",
				"data_harmonized/demo/preorigcopy/demo_visits_DATA_preorigcopy.csv",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			args := append([]string{tmpDir}, tt.args...)
			res := testutil.ExecuteCommand(t, NewInitCommand(), config.GetConfig(context.Background()), args...)
			if tt.wantErr {
				assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
				return
			}
			require.NoError(t, res.Err)

			for _, f := range tt.wantFiles {
				assert.FileExists(t, filepath.Join(tmpDir, f), "expected %s", f)
			}
			data, err := os.ReadFile(filepath.Join(tmpDir, "harmonize.yaml"))
			require.NoError(t, err)
			assert.NotEqual(t, "existing", string(data))
		})
	}
}

func TestInitExample_IsValidProject(t *testing.T) {
	dir := t.TempDir()
	res := testutil.ExecuteCommand(t, NewInitCommand(), config.GetConfig(context.Background()), dir, "--example")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "harmonize project initialized")

	cfg, err := intconfig.LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	ix, err := dictionary.Load(cfg.Reference.Sources())
	require.NoError(t, err)
	for _, cde := range cfg.MinCDEs {
		_, ok := ix.Standard(cde)
		assert.True(t, ok, "min CDE %s", cde)
	}
}

func TestRenameSpecialFiles(t *testing.T) {
	assert.Equal(t, ".gitignore", renameSpecialFiles("gitignore"))
	assert.Equal(t, "sub/.gitignore", renameSpecialFiles("sub/gitignore"))
	assert.Equal(t, "harmonize.yaml", renameSpecialFiles("harmonize.yaml"))
}
