package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/internal/report"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <study>",
		Short: "Show how a study's fields reconcile, without writing anything",
		Long: `Reconcile the dictionaries of one study against the reference dictionaries
and show the field mappings and findings. Nothing is written.

The most processed triplets available are used: the origcopy triplets in
work/, then the working copies, then the raw submission.`,
		Example: `  harmonize inspect s01
  harmonize inspect s01 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cc.Close()

			inspections, err := cc.Pipeline.Inspect(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "inspect failed", err)
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(inspections); err != nil {
					return err
				}
			} else {
				for _, in := range inspections {
					r.Header(1, in.File)
					r.Table([]string{"Field", "Target", "Match", "Recoding", "Conversion"}, mappingRows(in.Mappings))
					if len(in.Findings) > 0 {
						r.Header(2, "Findings")
						r.Table([]string{"Field", "Severity", "Code", "Message"}, findingRows(in.Findings))
					}
				}
			}

			var nerr int
			for _, in := range inspections {
				n, _ := report.Count(in.Findings)
				nerr += n
			}
			if nerr > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d reconciliation errors", nerr))
			}
			return nil
		},
	}
	return cmd
}

func mappingRows(mappings []core.FieldMapping) [][]string {
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		target := m.TargetIdentifier
		if m.Excluded {
			target += " (excluded)"
		}
		rows = append(rows, []string{
			m.SubmissionIdentifier, target, string(m.Kind), recodingText(m.Recoding), conversionText(m.Conversion),
		})
	}
	return rows
}

func recodingText(r core.ValueRecoding) string {
	if r.Identity {
		return ""
	}
	pairs := make([]string, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		pairs = append(pairs, p.From+"→"+p.To)
	}
	return strings.Join(pairs, ", ")
}

func conversionText(c *core.UnitConversion) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s→%s ×%s %+g", c.From, c.To, strconv.FormatFloat(c.Scale, 'g', -1, 64), c.Offset)
}

func findingRows(errs []core.HarmonizationError) [][]string {
	rows := make([][]string, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []string{e.Field, e.Severity.String(), string(e.Code), e.Message})
	}
	return rows
}
