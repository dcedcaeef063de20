// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/harmonize/internal/cli/config"
	"github.com/leapstack-labs/harmonize/internal/cli/output"
	intconfig "github.com/leapstack-labs/harmonize/internal/config"
	logutil "github.com/leapstack-labs/harmonize/internal/testutil"
)

// StudyID is the study created by SetupTestProject.
const StudyID = "s01"

var projectFiles = map[string]string{
	"harmonize.yaml": `data_dir: data
summary_dir: summary
reference:
  global: reference/global.csv
  legacy: reference/legacy.csv
min_cdes: [id, sex, age]
publish:
  driver: fs
  root: published
output: json
`,
	"reference/global.csv": `identifier,label,type,allowed_values,unit,alternate_names,required
id,Participant ID,text,,,,yes
sex,Sex,radio,"M, Male | F, Female",,,
age,Age,number,,yr,,
weight,Body weight,number,,kg,body_weight,
`,
	"reference/legacy.csv": `identifier,label,type,allowed_values,target,value_recoding
gender,Gender,radio,"1, Male | 2, Female",sex,1=M|2=F
`,
	"data/s01/preorigcopy/s01_visits_DATA_preorigcopy.csv": "id,gender,age,body_weight\np1,1,24,80\np2,2,36,61.5\n",
	"data/s01/preorigcopy/s01_visits_DICT_preorigcopy.csv": `Variable / Field Name,Field Label,Section Header,Field Type,Unit,"Choices, Calculations, OR Slider Labels",Field Note,CDE Reference
id,Participant ID,,text,,,,
gender,Gender,,radio,,"1, Male | 2, Female",,
age,Age,,number,months,,,
body_weight,Weight,,number,kg,,,
`,
	"data/s01/preorigcopy/s01_visits_META_preorigcopy.csv": `Field Label,Choices,Description
number_of_datafiles_in_this_package,1,Number of data files
datafile_names - add_additional_rows_as_needed,s01_visits_DATA_preorigcopy.csv,Visit data
`,
}

// SetupTestProject creates a temporary project with reference dictionaries
// and one study, s01, whose submission passes every phase.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range projectFiles {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return tmpDir
}

// LoadProjectConfig loads the harmonize.yaml of a project made by
// SetupTestProject.
func LoadProjectConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := intconfig.LoadFromDir(dir)
	if err != nil || cfg == nil {
		t.Fatalf("failed to load config from %s: %v", dir, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// CommandResult is the captured outcome of ExecuteCommand.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// ExecuteCommand runs cmd with args as if the root command had loaded cfg.
// Logs go to t.Log.
func ExecuteCommand(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) CommandResult {
	t.Helper()
	ctx := context.WithValue(context.Background(), config.ConfigKey(), cfg)
	ctx = context.WithValue(ctx, config.LoggerKey(), logutil.NewTestLogger(t))

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return CommandResult{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
