package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/output"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand() *cobra.Command {
	f := &studyFlags{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize error logs and harmonized data elements",
		Long: `Collect the phase error logs of every study into error_summary.csv in the
data directory. In the summary directory, list the fields of every
harmonized dictionary in data_elements.csv and the publications named in
each study's metadata in publications.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cc.Close()

			studies, err := f.studies(cc.Cfg)
			if err != nil {
				return err
			}
			res, err := cc.Pipeline.Summarize(cmd.Context(), studies)
			if err != nil {
				return WrapExitError(ExitFailure, "summary failed", err)
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(res)
			}
			r.Header(1, "Summary")
			rows := make([][]string, 0, len(res.Logs))
			for _, l := range res.Logs {
				rows = append(rows, []string{l.Study, l.Phase.String(), strconv.Itoa(l.Errors), strconv.Itoa(l.Warnings)})
			}
			r.Table([]string{"Study", "Phase", "Errors", "Warnings"}, rows)
			r.Println(output.FormatKeyValue("Studies", strconv.Itoa(len(studies))))
			r.Println(output.FormatKeyValue("Data elements", strconv.Itoa(len(res.Elements))))
			r.Println(output.FormatKeyValue("Publications", strconv.Itoa(len(res.Publications))))
			r.Println(output.FormatKeyValue("Error summary", res.ErrorSummaryPath))
			r.Println(output.FormatKeyValue("Data element summary", res.DataElementsPath))
			r.Println(output.FormatKeyValue("Publication summary", res.PublicationsPath))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
