package commands

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/blob"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/internal/match"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version        string   `json:"version"`
	Go             string   `json:"go"`
	Platform       string   `json:"platform"`
	Revision       string   `json:"revision,omitempty"`
	ErrorCodes     int      `json:"error_codes"`
	MatchOrder     []string `json:"match_order"`
	PublishDrivers []string `json:"publish_drivers"`
}

func versionInfo(version string) VersionInfo {
	info := VersionInfo{
		Version:    version,
		Go:         runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		ErrorCodes: len(core.Codes()),
	}
	for _, k := range match.DefaultOrder {
		info.MatchOrder = append(info.MatchOrder, string(k))
	}
	for _, d := range blob.Drivers {
		info.PublishDrivers = append(info.PublishDrivers, string(d))
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display harmonize version and build information: the Go toolchain, the
error code catalog size, the default match order and the publish drivers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContextWithoutPipeline(cmd).Renderer
			info := versionInfo(version)
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}
			r.Println("harmonize v" + info.Version)
			r.Println("Study submission harmonization engine")
			r.Println()
			r.Println(output.FormatKeyValue("Go", info.Go+" "+info.Platform))
			if info.Revision != "" {
				r.Println(output.FormatKeyValue("Revision", info.Revision))
			}
			r.Println(output.FormatKeyValue("Error codes", strconv.Itoa(info.ErrorCodes)))
			r.Println(output.FormatKeyValue("Match order", strings.Join(info.MatchOrder, " > ")))
			r.Println(output.FormatKeyValue("Publish drivers", strings.Join(info.PublishDrivers, ", ")))
			return nil
		},
	}
}
