// Package config provides the shared configuration types for harmonize.
// It is decoupled from CLI concerns: the pipeline and tests build a Config
// directly, the CLI layers files, environment and flags on top of Default.
package config

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/harmonize/internal/blob"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// ReferenceConfig holds the paths of the reference dictionaries. Empty
// paths are skipped.
type ReferenceConfig struct {
	Global string `koanf:"global"`
	Tier1  string `koanf:"tier1"`
	Tier2  string `koanf:"tier2"`
	Legacy string `koanf:"legacy"`
}

// Sources returns the configured dictionaries in authority order.
func (r ReferenceConfig) Sources() []dictionary.Source {
	var out []dictionary.Source
	for _, s := range []dictionary.Source{
		{Path: r.Global, Authority: core.AuthorityGlobal},
		{Path: r.Tier1, Authority: core.AuthorityTier1},
		{Path: r.Tier2, Authority: core.AuthorityTier2},
		{Path: r.Legacy, Authority: core.AuthorityLegacy},
	} {
		if s.Path != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchConfig holds reconciler settings.
type MatchConfig struct {
	// Order lists match strategies by name: exact, renamed, legacy.
	Order []string `koanf:"order"`
}

// Kinds converts Order to match kinds.
func (m MatchConfig) Kinds() ([]core.MatchKind, error) {
	out := make([]core.MatchKind, 0, len(m.Order))
	for _, s := range m.Order {
		k, ok := core.ParseMatchKind(s)
		if !ok || k == core.MatchUnmatched {
			return nil, fmt.Errorf("unknown match strategy %q", s)
		}
		out = append(out, k)
	}
	return out, nil
}

// ValidatorConfig configures one external validator. Command is a template
// with {input} and {spec} placeholders.
type ValidatorConfig struct {
	Command string `koanf:"command"`
	Spec    string `koanf:"spec"`
}

// Enabled reports whether a command is configured.
func (v ValidatorConfig) Enabled() bool { return v.Command != "" }

// ValidatorsConfig groups the validators by the file kind they check.
type ValidatorsConfig struct {
	Dictionary ValidatorConfig `koanf:"dictionary"`
	Metadata   ValidatorConfig `koanf:"metadata"`
}

// PublishConfig configures the blob store that receives finished studies.
type PublishConfig struct {
	Driver    string `koanf:"driver"`
	Root      string `koanf:"root"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	Prefix    string `koanf:"prefix"`
	PathStyle bool   `koanf:"path_style"`
}

// BlobConfig converts to the blob package's configuration. Credentials are
// left to the default AWS chain.
func (p PublishConfig) BlobConfig() blob.Config {
	return blob.Config{
		Driver:    blob.Driver(p.Driver),
		Root:      p.Root,
		Bucket:    p.Bucket,
		Region:    p.Region,
		Endpoint:  p.Endpoint,
		PathStyle: p.PathStyle,
	}
}

// Config holds all configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`

	DataDir    string           `koanf:"data_dir"`
	SummaryDir string           `koanf:"summary_dir"`
	Reference  ReferenceConfig  `koanf:"reference"`
	UnitsFile  string           `koanf:"units_file"`
	PrimaryKey string           `koanf:"primary_key"`
	MinCDEs    []string         `koanf:"min_cdes"`
	Workers    int              `koanf:"workers"`
	Match      MatchConfig      `koanf:"match"`
	Validators ValidatorsConfig `koanf:"validators"`
	Publish    PublishConfig    `koanf:"publish"`

	MetricsFile string `koanf:"metrics_file"`

	LogLevel     string `koanf:"log_level"`
	LogFormat    string `koanf:"log_format"`
	OutputFormat string `koanf:"output"`
	Verbose      bool   `koanf:"verbose"`
}

// Validate checks the option values that can be checked without touching
// the filesystem.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := c.Match.Kinds(); err != nil {
		return fmt.Errorf("match.order: %w", err)
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("output must be one of %v, got %q", OutputFormats, c.OutputFormat)
	}
	if !slices.Contains(LogLevels, c.LogLevel) {
		return fmt.Errorf("log_level must be one of %v, got %q", LogLevels, c.LogLevel)
	}
	if !slices.Contains(LogFormats, c.LogFormat) {
		return fmt.Errorf("log_format must be one of %v, got %q", LogFormats, c.LogFormat)
	}
	if c.Publish.Driver != "" && !slices.Contains(blob.Drivers, blob.Driver(c.Publish.Driver)) {
		return fmt.Errorf("publish.driver must be one of %v, got %q", blob.Drivers, c.Publish.Driver)
	}
	if blob.Driver(c.Publish.Driver) == blob.DriverS3 && c.Publish.Bucket == "" {
		return fmt.Errorf("publish.bucket is required for the s3 driver")
	}
	return nil
}
