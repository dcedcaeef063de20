package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/internal/metrics"
	"github.com/leapstack-labs/harmonize/internal/pipeline"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// phaseFlags holds the options shared by the phase commands and run.
type phaseFlags struct {
	studyFlags
	Reset bool
	Rerun bool
	Yes   bool
	Start int
	End   int
}

func (f *phaseFlags) register(cmd *cobra.Command) {
	f.studyFlags.register(cmd)
	cmd.Flags().BoolVar(&f.Reset, "reset", false, "Discard the outputs of earlier runs first")
	cmd.Flags().BoolVar(&f.Rerun, "rerun", false, "Reprocess the work directory in place, ignoring the lock")
	cmd.Flags().BoolVarP(&f.Yes, "yes", "y", false, "Do not ask before --reset deletes files")
	cmd.Flags().IntVar(&f.Start, "start", 0, "First triplet to process (1-based)")
	cmd.Flags().IntVar(&f.End, "end", 0, "Last triplet to process (inclusive)")
}

func (f *phaseFlags) options() pipeline.Options {
	return pipeline.Options{Reset: f.Reset, Rerun: f.Rerun, Start: f.Start, End: f.End}
}

var phaseDescriptions = map[core.Phase]struct{ short, long string }{
	core.Phase1: {
		"Check the raw submission",
		`Check the raw submission in preorigcopy/: the DATA, DICT and META triplets,
file names, encodings, CSV structure and the META contents. DICT and META
files are also passed to the configured external validators.

Findings are written to work/phase1_errors.csv. Nothing else is written.`,
	},
	core.Phase2: {
		"Normalize the working copy and check it against the dictionaries",
		`Copy the submission into work/, convert ISO-8859-1 files to UTF-8, clean
the CSV files, standardize units and check DATA against its DICT and the
reference dictionaries.

Runs only when phase 1 left no findings. A clean study gets its origcopy
triplet in work/; findings go to work/phase2_errors.csv.`,
	},
	core.Phase3: {
		"Reconcile and transform into harmonized outputs",
		`Reconcile every origcopy dictionary against the reference dictionaries,
transform the data and write origcopy/ and transformcopy/. The transformcopy
dictionaries must define the minimum common data elements.

Runs only when phases 1 and 2 left no findings.`,
	},
}

// NewPhaseCommand creates the command for one phase.
func NewPhaseCommand(phase core.Phase) *cobra.Command {
	f := &phaseFlags{}
	desc := phaseDescriptions[phase]
	name := "phase" + phase.String()
	cmd := &cobra.Command{
		Use:   name,
		Short: desc.short,
		Long:  desc.long,
		Example: fmt.Sprintf(`  # Process every study
  harmonize %[1]s

  # Process two studies, starting over
  harmonize %[1]s --include s01,s02 --reset --yes

  # Process the third to fifth triplet of one study
  harmonize %[1]s --include s01 --start 3 --end 5`, name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhases(cmd, []core.Phase{phase}, f)
		},
	}
	f.register(cmd)
	return cmd
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	f := &phaseFlags{}
	var phases []int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run phases 1 to 3 for every study",
		Long: `Run the harmonization phases in order for each selected study.

A study stops at the first phase that fails outright. A phase that logs
findings does not stop the run, but the next phase is then skipped for that
study. Studies are processed concurrently; see the workers setting.`,
		Example: `  # Harmonize everything
  harmonize run

  # Only the checking phases, JSON output for CI
  harmonize run --phases 1,2 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parsePhases(phases)
			if err != nil {
				return err
			}
			return runPhases(cmd, selected, f)
		},
	}
	f.register(cmd)
	cmd.Flags().IntSliceVar(&phases, "phases", []int{1, 2, 3}, "Phases to run, in order")
	return cmd
}

func parsePhases(in []int) ([]core.Phase, error) {
	out := make([]core.Phase, 0, len(in))
	for i, n := range in {
		p := core.Phase(n)
		if p < core.Phase1 || p > core.Phase3 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown phase %d", n))
		}
		if i > 0 && p <= out[len(out)-1] {
			return nil, NewExitError(ExitCommandError, "phases must be listed in increasing order")
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, NewExitError(ExitCommandError, "no phases selected")
	}
	return out, nil
}

func runPhases(cmd *cobra.Command, phases []core.Phase, f *phaseFlags) error {
	opts := f.options()
	if err := opts.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid options", err)
	}

	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cc.Close()

	studies, err := f.studies(cc.Cfg)
	if err != nil {
		return err
	}

	if opts.Reset && !f.Yes {
		ok, err := confirm(cmd, fmt.Sprintf("Reset %d studies and delete their earlier outputs?", len(studies)))
		if err != nil {
			return err
		}
		if !ok {
			return NewExitError(ExitCommandError, "reset cancelled")
		}
	}

	start := time.Now()
	results, runErr := cc.Pipeline.Run(cmd.Context(), studies, phases, opts)
	if err := renderResults(cc.Renderer, phases, results, time.Since(start)); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	}
	return resultsExit(results)
}

// resultsExit fails when any study phase failed, logged errors, or logged
// warnings that keep the next phase from running. Phase 3 warnings do not
// block publishing.
func resultsExit(results []pipeline.StudyResult) error {
	var failed, blocked int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Errors > 0, r.Warnings > 0 && r.Phase < core.Phase3:
			blocked++
		}
	}
	switch {
	case failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d study phases failed", failed))
	case blocked > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d study phases logged blocking findings", blocked))
	}
	return nil
}

// ResultView is the JSON form of a StudyResult.
type ResultView struct {
	Study      string `json:"study"`
	Phase      int    `json:"phase"`
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	Log        string `json:"log,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func resultView(r pipeline.StudyResult) ResultView {
	v := ResultView{
		Study:      r.Study,
		Phase:      int(r.Phase),
		RunID:      r.RunID,
		Outcome:    r.Outcome(),
		Errors:     r.Errors,
		Warnings:   r.Warnings,
		Log:        r.LogPath,
		Reason:     r.Reason,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func renderResults(r *output.Renderer, phases []core.Phase, results []pipeline.StudyResult, elapsed time.Duration) error {
	if r.EffectiveMode() == output.ModeJSON {
		views := make([]ResultView, 0, len(results))
		for _, res := range results {
			views = append(views, resultView(res))
		}
		return r.JSON(views)
	}

	title := "Harmonization run"
	if len(phases) == 1 {
		title = "Phase " + phases[0].String()
	}
	r.Header(1, title)

	caser := cases.Title(language.English)
	counts := map[string]int{}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		v := resultView(res)
		counts[v.Outcome]++
		detail := v.Log
		switch {
		case v.Error != "":
			detail = v.Error
		case v.Reason != "":
			detail = v.Reason
		}
		rows = append(rows, []string{
			v.Study, strconv.Itoa(v.Phase), caser.String(v.Outcome),
			strconv.Itoa(v.Errors), strconv.Itoa(v.Warnings), detail,
		})
	}
	r.Table([]string{"Study", "Phase", "Outcome", "Errors", "Warnings", "Detail"}, rows)

	line := fmt.Sprintf("%d clean, %d with findings, %d skipped, %d failed in %s",
		counts[metrics.OutcomeClean], counts[metrics.OutcomeFindings], counts[metrics.OutcomeSkipped], counts[metrics.OutcomeFailed], elapsed.Round(time.Millisecond))
	switch {
	case counts[metrics.OutcomeFailed] > 0:
		r.Error(line)
	case counts[metrics.OutcomeFindings] > 0:
		r.Warning(line)
	default:
		r.Success(line)
	}
	return nil
}
