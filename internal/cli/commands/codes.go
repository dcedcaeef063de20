package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// NewCodesCommand creates the codes command.
func NewCodesCommand() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "List the finding codes used in error logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutPipeline(cmd)
			r := cc.Renderer

			var infos []core.CodeInfo
			for _, info := range core.Codes() {
				if group == "" || info.Group == group {
					infos = append(infos, info)
				}
			}
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{string(info.Code), info.Group, info.DefaultSeverity.String(), info.Summary})
			}
			r.Table([]string{"Code", "Group", "Severity", "Summary"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only list codes of this group (inventory, meta, csv, dict, data, reconcile, transform, validator, consistency)")
	return cmd
}
