package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/metrics"
	"github.com/leapstack-labs/harmonize/internal/pipeline"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
}

// NewCommandContext creates a CommandContext with a loaded pipeline.
// Unusable reference dictionaries are a command error: nothing can run.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := NewCommandContextWithoutPipeline(cmd)
	cc.Metrics = metrics.New()

	p, err := pipeline.Load(cc.Cfg, cc.Metrics, cc.Logger)
	if err != nil {
		var le *dictionary.LoadError
		if errors.As(err, &le) {
			return nil, WrapExitError(ExitCommandError, "reference dictionaries are unusable", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to set up pipeline", err)
	}
	cc.Pipeline = p
	return cc, nil
}

// NewCommandContextWithoutPipeline creates a CommandContext for commands
// that do not touch study data.
func NewCommandContextWithoutPipeline(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	mode := output.OutputMode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Close writes the metrics textfile when one is configured.
func (cc *CommandContext) Close() {
	if cc.Metrics == nil || cc.Cfg.MetricsFile == "" {
		return
	}
	if err := cc.Metrics.WriteTextfile(cc.Cfg.MetricsFile); err != nil {
		cc.Logger.Warn("failed to write metrics", "path", cc.Cfg.MetricsFile, "error", err)
		return
	}
	cc.Logger.Debug("metrics written", "path", cc.Cfg.MetricsFile)
}

// studyFlags selects the studies a command works on.
type studyFlags struct {
	Include []string
	Exclude []string
}

func (f *studyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.Include, "include", nil, "Only process these studies (comma-separated)")
	cmd.Flags().StringSliceVar(&f.Exclude, "exclude", nil, "Skip these studies (comma-separated)")
}

func (f *studyFlags) studies(cfg *config.Config) ([]string, error) {
	studies, err := pipeline.SelectStudies(cfg.DataDir, f.Include, f.Exclude)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot select studies", err)
	}
	if len(studies) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no studies found in %s", cfg.DataDir))
	}
	return studies, nil
}
