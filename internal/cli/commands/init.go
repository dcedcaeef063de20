package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/output"
	intconfig "github.com/leapstack-labs/harmonize/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new harmonize project",
		Long: `Initialize a new harmonize project with a configuration file and an empty
data directory.

This creates:
  - harmonize.yaml configuration file
  - data_harmonized/ directory, one subdirectory per study

Use --example to create a working demo with reference dictionaries and one
study submission that exercises exact, renamed and legacy matches.`,
		Example: `  # Initialize in current directory
  harmonize init

  # Initialize a working example in a new directory
  harmonize init demo --example

  # Force overwrite existing config
  harmonize init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := NewCommandContextWithoutPipeline(cmd).Renderer

			template := "minimal"
			if example {
				template = "example"
			}
			return runInit(r, dir, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with reference data and a study")

	return cmd
}

func runInit(r *output.Renderer, dir, template string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return WrapExitError(ExitCommandError, "failed to create directory "+dir, err)
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName))
	}

	if err := copyTemplate(template, dir, force); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize project", err)
	}

	files, err := listTemplateFiles(template)
	if err != nil {
		return err
	}
	groups := groupTemplateFiles(files)
	for _, g := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"reference", "Reference dictionaries"},
		{"studies", "Studies"},
	} {
		if len(groups[g.key]) == 0 {
			continue
		}
		r.Header(2, g.title)
		for _, f := range groups[g.key] {
			r.StatusLine(f, "success", "")
		}
		r.Println("")
	}

	r.Success("harmonize project initialized!")
	r.Println("")
	r.Println("Next steps:")
	if template == "example" {
		r.Println("  harmonize run           Run phases 1 to 3 for the demo study")
		r.Println("  harmonize inspect demo  See how its fields were matched")
		r.Println("  harmonize publish       Upload the harmonized files")
	} else {
		r.Println("  1. Point reference: in harmonize.yaml at your dictionaries")
		r.Println("  2. Put each study's triplets in data_harmonized/<study>/preorigcopy/")
		r.Println("  3. Run 'harmonize doctor', then 'harmonize run'")
	}
	return nil
}
