package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bencmd88/venicegate/internal/apispec"
)

// DatabaseURLEnv overrides audit.dsn when set.
const DatabaseURLEnv = "VENICEGATE_DATABASE_URL"

// ErrMissingCredential is returned when a required environment variable is unset.
var ErrMissingCredential = errors.New("missing credential")

// Load reads and parses a configuration from the given YAML file path,
// then applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	cfg.Source = path

	applyDefaults(&cfg)
	applyEnv(&cfg, os.LookupEnv)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./venicegate.yaml, ~/.venicegate/config.yaml.
// When none exists the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"venicegate.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".venicegate", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg, os.LookupEnv)
	return &cfg
}

func applyDefaults(cfg *Config) {
	s := &cfg.Spec
	if s.URL == "" {
		s.URL = apispec.DefaultURL
	}
	if s.Timeout == "" {
		s.Timeout = "30s"
	}
	if s.SnapshotDir == "" {
		s.SnapshotDir = "docs"
	}

	r := &cfg.Repository
	if r.Root == "" {
		r.Root = "."
	}
	if r.CodeDir == "" {
		r.CodeDir = "pyvenice"
	}
	if r.Language == "" {
		r.Language = "python"
	}
	if r.Trunk == "" {
		r.Trunk = "main"
	}
	if r.BackupFiles == nil {
		r.BackupFiles = []string{"pyproject.toml"}
	}

	c := &cfg.Checks
	setCheck(&c.Imports, `python -c "import {module}"`, "generic", "30s")
	setCheck(&c.Lint, "ruff check --output-format=json "+r.CodeDir, "ruff", "60s")
	if c.Lint.ErrorCodes == nil {
		c.Lint.ErrorCodes = []string{"E9", "F63", "F7", "F82"}
	}
	setCheck(&c.Tests, `pytest tests/ -q --tb=short -m "not integration"`, "pytest", "300s")
	if c.Contract.Command == "" {
		c.Contract.NeedsKey = true
	}
	setCheck(&c.Contract, "python scripts/api-contract-validator.py --json", "contract", "120s")

	ci := &cfg.CI
	if ci.PollInterval == "" {
		ci.PollInterval = "30s"
	}
	if ci.Lookback == "" {
		ci.Lookback = "24h"
	}
	if ci.Timeout == "" {
		ci.Timeout = "15m"
	}

	if cfg.Deploy.StateDir == "" {
		cfg.Deploy.StateDir = s.SnapshotDir
	}

	g := &cfg.Generate
	if g.Kind == "" {
		g.Kind = "noop"
	}
	if g.Timeout == "" {
		g.Timeout = "10m"
	}

	cl := &cfg.Changelog
	if cl.Timeout == "" {
		cl.Timeout = "30s"
	}
	if cl.Cache == "" {
		cl.Cache = filepath.Join(s.SnapshotDir, "changelog_cache.json")
	}

	l := &cfg.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
}

func setCheck(c *CheckCommand, command, parser, timeout string) {
	if c.Command == "" {
		c.Command = command
	}
	if c.Parser == "" {
		c.Parser = parser
	}
	if c.Timeout == "" {
		c.Timeout = timeout
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(DatabaseURLEnv); ok && v != "" {
		cfg.Audit.DSN = v
	}
}

// CheckCredentials returns an error wrapping ErrMissingCredential that names
// every required variable lookup does not find. A nil lookup uses os.LookupEnv.
func CheckCredentials(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	for _, name := range cfg.Credentials.Required {
		if v, ok := lookup(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
}
