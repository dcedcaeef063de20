package config

import (
	"runtime"

	"github.com/leapstack-labs/harmonize/internal/submission"
)

// Default configuration values.
const (
	DefaultDataDir       = "data_harmonized"
	DefaultSummaryDir    = "summary"
	DefaultPublishDriver = "fs"
	DefaultPublishRoot   = "published"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultOutput        = "auto" // TTY=text, otherwise markdown
)

// Accepted enumerations.
var (
	OutputFormats = []string{"auto", "text", "markdown", "json"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
	LogFormats    = []string{"text", "json"}
)

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	ApplyDefaults(c)
	return c
}

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.SummaryDir == "" {
		c.SummaryDir = DefaultSummaryDir
	}
	if c.PrimaryKey == "" {
		c.PrimaryKey = submission.DefaultPrimaryKey
	}
	if len(c.MinCDEs) == 0 {
		c.MinCDEs = []string{c.PrimaryKey}
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if len(c.Match.Order) == 0 {
		c.Match.Order = []string{"exact", "renamed", "legacy"}
	}
	if c.Publish.Driver == "" {
		c.Publish.Driver = DefaultPublishDriver
	}
	if c.Publish.Root == "" && c.Publish.Driver == DefaultPublishDriver {
		c.Publish.Root = DefaultPublishRoot
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutput
	}
}
