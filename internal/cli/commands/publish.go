package commands

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/blob"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/internal/pipeline"
)

// NewPublishCommand creates the publish command.
func NewPublishCommand() *cobra.Command {
	f := &studyFlags{}
	var prefix string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload harmonized studies to the object store",
		Long: `Upload the origcopy/ and transformcopy/ files of every finished study to
the configured object store (publish.driver: fs, s3 or memory).

A study is published only when phases 1 and 2 left no findings and phase 3
left no errors. Objects whose stored sha256 matches the local file are not
uploaded again; changed objects are replaced.`,
		Example: `  # Publish to the configured store
  harmonize publish

  # Publish one study under a release prefix
  harmonize publish --include s01 --prefix release-2026-10`,
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
			if !cmd.Flags().Changed("prefix") {
				prefix = cc.Cfg.Publish.Prefix
			}
			store, err := blob.Open(cmd.Context(), cc.Cfg.Publish.BlobConfig())
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot open object store", err)
			}

			results, pubErr := cc.Pipeline.Publish(cmd.Context(), store, studies, prefix)
			if err := renderPublish(cc.Renderer, store.Driver(), results); err != nil {
				return err
			}
			if pubErr != nil {
				return WrapExitError(ExitFailure, "publish failed", pubErr)
			}
			var skipped int
			for _, res := range results {
				if res.Skipped {
					skipped++
				}
			}
			if skipped > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d studies were not published", skipped))
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix for uploaded objects (default: publish.prefix)")
	return cmd
}

func renderPublish(r *output.Renderer, driver blob.Driver, results []pipeline.PublishResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}
	r.Header(1, fmt.Sprintf("Publish (%s)", driver))
	var rows [][]string
	for _, res := range results {
		if res.Skipped {
			r.StatusLine(res.Study, "skipped", res.Reason)
			continue
		}
		r.StatusLine(res.Study, "success", fmt.Sprintf("%d objects", len(res.Objects)))
		for _, key := range slices.Sorted(maps.Keys(res.Objects)) {
			rows = append(rows, []string{res.Study, key, res.Objects[key]})
		}
	}
	if len(rows) > 0 {
		r.Println()
		r.Table([]string{"Study", "Object", "Result"}, rows)
	}
	return nil
}
