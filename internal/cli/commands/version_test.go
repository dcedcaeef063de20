package commands

import (
	"context"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/testutil"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut []string
	}{
		{
			name:    "default version",
			version: "0.1.0",
			wantOut: []string{"harmonize v0.1.0", "harmonization engine"},
		},
		{
			name:    "custom version",
			version: "1.2.3",
			wantOut: []string{"harmonize v1.2.3"},
		},
		{
			name:    "dev version",
			version: "dev",
			wantOut: []string{"harmonize vdev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetConfig(context.Background())
			cfg.OutputFormat = "markdown"
			res := testutil.ExecuteCommand(t, NewVersionCommand(tt.version), cfg)
			require.NoError(t, res.Err)

			for _, want := range tt.wantOut {
				assert.Contains(t, res.Stdout, want)
			}
			assert.Contains(t, res.Stdout, "- **Go**: "+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH)
			assert.Contains(t, res.Stdout, "- **Error codes**: "+strconv.Itoa(len(core.Codes())))
			assert.Contains(t, res.Stdout, "- **Match order**: exact > renamed > legacy")
			assert.Contains(t, res.Stdout, "- **Publish drivers**: fs, s3, memory")
		})
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	cfg := config.GetConfig(context.Background())
	cfg.OutputFormat = "json"
	res := testutil.ExecuteCommand(t, NewVersionCommand("1.2.3"), cfg)
	require.NoError(t, res.Err)

	info := decode[VersionInfo](t, res.Stdout)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, runtime.Version(), info.Go)
	assert.Equal(t, len(core.Codes()), info.ErrorCodes)
	assert.Equal(t, []string{"exact", "renamed", "legacy"}, info.MatchOrder)
	assert.Equal(t, []string{"fs", "s3", "memory"}, info.PublishDrivers)
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand("test")
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}
