package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "harmonize.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "harmonize.yml"

// LoadFromDir loads a Config from the config file in dir, with defaults
// applied and relative paths resolved against dir.
// Returns nil, nil if no config file is found (not an error condition).
func LoadFromDir(dir string) (*Config, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	cfg.ProjectRoot = dir
	cfg.ResolvePaths(dir)
	return &cfg, nil
}

// FindConfigFile returns the config file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolvePaths makes every relative path in c relative to base.
func (c *Config) ResolvePaths(base string) {
	for _, p := range []*string{
		&c.DataDir,
		&c.SummaryDir,
		&c.UnitsFile,
		&c.MetricsFile,
		&c.Reference.Global,
		&c.Reference.Tier1,
		&c.Reference.Tier2,
		&c.Reference.Legacy,
		&c.Validators.Dictionary.Spec,
		&c.Validators.Metadata.Spec,
		&c.Publish.Root,
	} {
		*p = resolve(*p, base)
	}
}

func resolve(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
