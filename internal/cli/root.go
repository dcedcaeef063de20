// Package cli provides the command-line interface for harmonize.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/commands"
	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	intconfig "github.com/leapstack-labs/harmonize/internal/config"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "harmonize",
		Short: "harmonize - study submission harmonization",
		Long: `harmonize checks study submissions and converts them to the common data
model defined by the reference dictionaries.

Each study lives in its own directory under the data directory. A
submission is a set of DATA, DICT and META triplets in preorigcopy/.
Phase 1 checks the raw files, phase 2 normalizes a working copy and checks
it against the dictionaries, phase 3 reconciles and transforms it. Every
phase writes its findings to an error log; a study only moves on when the
logs of earlier phases are clean.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return commands.WrapExitError(commands.ExitCommandError, "configuration error", err)
			}
			logger := config.NewLogger(cfg, cmd.ErrOrStderr())

			ctx := context.WithValue(cmd.Context(), config.ConfigKey(), cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if file := config.GetConfigFileUsed(); file != "" {
				logger.Debug("using config file", "path", file)
			}
			logger.Debug("configuration loaded", "data_dir", cfg.DataDir, "workers", cfg.Workers)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return commands.WrapExitError(commands.ExitCommandError, "invalid flags", err)
	})

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Study submission harmonization engine
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: harmonize.yaml in this or a parent directory)")
	pf.String("data-dir", "", "Directory holding one subdirectory per study")
	pf.String("summary-dir", "", "Directory for the data element summary")
	pf.String("units-file", "", "YAML file extending the unit table")
	pf.String("metrics-file", "", "Write Prometheus metrics to this file after the command")
	pf.Int("workers", 0, "Studies processed concurrently (default: number of CPUs)")
	pf.String("primary-key", "", "Primary key field of DATA files")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", fixedCompletion(intconfig.OutputFormats))
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", fixedCompletion(intconfig.LogLevels))
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", fixedCompletion(intconfig.LogFormats))

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewPhaseCommand(core.Phase1))
	rootCmd.AddCommand(commands.NewPhaseCommand(core.Phase2))
	rootCmd.AddCommand(commands.NewPhaseCommand(core.Phase3))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewSummaryCommand())
	rootCmd.AddCommand(commands.NewPublishCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewCodesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func fixedCompletion(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return ExecuteArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the root command with explicit arguments and writers.
func ExecuteArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		r := output.NewRenderer(stdout, stderr, output.ModeAuto)
		r.Error(fmt.Sprintf("Error: %v", err))
		return commands.GetExitCode(err)
	}
	return commands.ExitSuccess
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for harmonize.

To load completions:

Bash:
  $ source <(harmonize completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ harmonize completion bash > /etc/bash_completion.d/harmonize
  # macOS:
  $ harmonize completion bash > $(brew --prefix)/etc/bash_completion.d/harmonize

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ harmonize completion zsh > "${fpath[1]}/_harmonize"

Fish:
  $ harmonize completion fish | source

PowerShell:
  PS> harmonize completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
