package commands

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/harmonize/internal/blob"
	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	intconfig "github.com/leapstack-labs/harmonize/internal/config"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/internal/pipeline"
	"github.com/leapstack-labs/harmonize/internal/units"
	"github.com/leapstack-labs/harmonize/internal/validator"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Check statuses.
const (
	CheckPass  = "pass"
	CheckWarn  = "warn"
	CheckError = "error"
)

// HealthCheck is one doctor finding.
type HealthCheck struct {
	Group   string   `json:"group"`
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Details []string `json:"details,omitempty"`
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and reference data",
		Long: `Check that everything a run needs is in place: the config file, the data
directory, the reference dictionaries, the unit table, the external
validators and the publish store. Study data is not touched.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutPipeline(cmd)
			checks := runChecks(cmd, cc.Cfg)
			if err := renderChecks(cc.Renderer, checks); err != nil {
				return err
			}
			for _, c := range checks {
				if c.Status == CheckError {
					return NewExitError(ExitCommandError, "doctor found problems")
				}
			}
			return nil
		},
	}
}

func runChecks(cmd *cobra.Command, cfg *config.Config) []HealthCheck {
	var checks []HealthCheck

	file := config.GetConfigFileUsed()
	if file == "" {
		checks = append(checks, HealthCheck{Group: "config", Name: "config file", Status: CheckWarn,
			Details: []string{"no harmonize.yaml found; using defaults"}})
	} else {
		checks = append(checks, HealthCheck{Group: "config", Name: "config file", Status: CheckPass, Details: []string{file}})
	}

	studies, err := pipeline.SelectStudies(cfg.DataDir, nil, nil)
	switch {
	case err != nil:
		checks = append(checks, HealthCheck{Group: "data", Name: "data directory", Status: CheckError, Details: []string{err.Error()}})
	case len(studies) == 0:
		checks = append(checks, HealthCheck{Group: "data", Name: "data directory", Status: CheckWarn,
			Details: []string{cfg.DataDir + " holds no studies"}})
	default:
		checks = append(checks, HealthCheck{Group: "data", Name: "data directory", Status: CheckPass,
			Details: []string{fmt.Sprintf("%d studies in %s", len(studies), cfg.DataDir)}})
	}

	checks = append(checks, referenceCheck(cfg), conflictCheck(cfg))
	checks = append(checks, unitsCheck(cfg))
	checks = append(checks,
		validatorCheck("dictionary validator", cfg.Validators.Dictionary),
		validatorCheck("metadata validator", cfg.Validators.Metadata),
	)

	if _, err := blob.Open(cmd.Context(), cfg.Publish.BlobConfig()); err != nil {
		checks = append(checks, HealthCheck{Group: "publish", Name: "object store", Status: CheckError, Details: []string{err.Error()}})
	} else {
		checks = append(checks, HealthCheck{Group: "publish", Name: "object store", Status: CheckPass,
			Details: []string{"driver " + cfg.Publish.Driver}})
	}
	return checks
}

func referenceCheck(cfg *config.Config) HealthCheck {
	c := HealthCheck{Group: "reference", Name: "reference dictionaries"}
	sources := cfg.Reference.Sources()
	if len(sources) == 0 {
		c.Status = CheckWarn
		c.Details = []string{"no reference dictionaries configured; every field will be unmatched"}
		return c
	}
	ix, err := dictionary.Load(sources)
	if err != nil {
		c.Status = CheckError
		c.Details = []string{err.Error()}
		return c
	}
	c.Status = CheckPass
	for _, a := range []core.Authority{core.AuthorityGlobal, core.AuthorityTier1, core.AuthorityTier2, core.AuthorityLegacy} {
		if n := len(ix.Definitions(a)); n > 0 {
			c.Details = append(c.Details, fmt.Sprintf("%s: %d definitions", a, n))
		}
	}
	for _, cde := range cfg.MinCDEs {
		if _, ok := ix.Standard(cde); !ok {
			c.Status = CheckWarn
			c.Details = append(c.Details, fmt.Sprintf("minimum CDE %s has no standard definition", cde))
		}
	}
	return c
}

func conflictCheck(cfg *config.Config) HealthCheck {
	c := HealthCheck{Group: "reference", Name: "tier conflicts", Status: CheckPass}
	ix, err := dictionary.Load(cfg.Reference.Sources())
	if err != nil {
		// reported by referenceCheck
		return c
	}
	for _, conflict := range ix.Conflicts() {
		c.Status = CheckWarn
		for _, d := range conflict.Shadowed {
			c.Details = append(c.Details, fmt.Sprintf("%s: %s definition shadows %s", conflict.Identifier, conflict.Winner.Source, d.Source))
		}
	}
	return c
}

func unitsCheck(cfg *config.Config) HealthCheck {
	c := HealthCheck{Group: "reference", Name: "unit table", Status: CheckPass, Details: []string{"built-in"}}
	if cfg.UnitsFile == "" {
		return c
	}
	if _, err := units.LoadFile(cfg.UnitsFile); err != nil {
		c.Status = CheckError
		c.Details = []string{err.Error()}
		return c
	}
	c.Details = []string{cfg.UnitsFile}
	return c
}

func validatorCheck(name string, v intconfig.ValidatorConfig) HealthCheck {
	c := HealthCheck{Group: "validators", Name: name, Status: CheckPass}
	if !v.Enabled() {
		c.Details = []string{"not configured"}
		return c
	}
	x, err := validator.ParseCommand(v.Command)
	if err != nil {
		c.Status = CheckError
		c.Details = []string{err.Error()}
		return c
	}
	if _, err := exec.LookPath(x.Name); err != nil {
		c.Status = CheckError
		c.Details = append(c.Details, err.Error())
	}
	if v.Spec != "" {
		if _, err := os.Stat(v.Spec); err != nil {
			c.Status = CheckError
			c.Details = append(c.Details, "spec: "+err.Error())
		}
	}
	if c.Status == CheckPass {
		c.Details = []string{v.Command}
	}
	return c
}

func renderChecks(r *output.Renderer, checks []HealthCheck) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(checks)
	}
	caser := cases.Title(language.English)
	group := ""
	for _, c := range checks {
		if c.Group != group {
			group = c.Group
			r.Header(2, caser.String(group))
		}
		status := "success"
		switch c.Status {
		case CheckWarn:
			status = "skipped"
		case CheckError:
			status = "failed"
		}
		r.StatusLine(c.Name, status, strings.Join(c.Details, "; "))
	}
	return nil
}
