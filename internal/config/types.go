package config

import "time"

// Config is the top-level configuration parsed from venicegate.yaml.
type Config struct {
	Spec        SpecConfig        `yaml:"spec"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Checks      ChecksConfig      `yaml:"checks"`
	CI          CIConfig          `yaml:"ci"`
	Deploy      DeployConfig      `yaml:"deploy"`
	Generate    GenerateConfig    `yaml:"generate"`
	Changelog   ChangelogConfig   `yaml:"changelog"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Credentials CredentialsConfig `yaml:"credentials"`

	// Source is the file the config was read from, empty for built-in defaults.
	Source string `yaml:"-"`
}

// SpecConfig locates the upstream specification and its local snapshot.
type SpecConfig struct {
	URL         string `yaml:"url"`
	Timeout     string `yaml:"timeout"`
	SnapshotDir string `yaml:"snapshot_dir"`
	MaxChanges  int    `yaml:"max_changes"`
	Lint        bool   `yaml:"lint"`
}

// RepositoryConfig describes the client repository being kept in sync.
type RepositoryConfig struct {
	Root        string   `yaml:"root"`
	CodeDir     string   `yaml:"code_dir"`
	Language    string   `yaml:"language"`
	Extensions  []string `yaml:"extensions"`
	Trunk       string   `yaml:"trunk"`
	BackupFiles []string `yaml:"backup_files"`
}

// ChecksConfig configures the command-backed safety checks.
type ChecksConfig struct {
	Imports  CheckCommand `yaml:"imports"`
	Lint     CheckCommand `yaml:"lint"`
	Tests    CheckCommand `yaml:"tests"`
	Contract CheckCommand `yaml:"contract"`
}

// CheckCommand is one external check. An empty command disables it.
type CheckCommand struct {
	Command    string   `yaml:"command"`
	Parser     string   `yaml:"parser"`
	Timeout    string   `yaml:"timeout"`
	ErrorCodes []string `yaml:"error_codes"`
	NeedsKey   bool     `yaml:"needs_key"`
}

// CIConfig tunes the CI status oracle.
type CIConfig struct {
	PollInterval string `yaml:"poll_interval"`
	Lookback     string `yaml:"lookback"`
	Timeout      string `yaml:"timeout"`
}

// DeployConfig tunes the deployment pipeline.
type DeployConfig struct {
	BlockOnUnknownCI *bool    `yaml:"block_on_unknown_ci"`
	RequiredTools    []string `yaml:"required_tools"`
	StateDir         string   `yaml:"state_dir"`
}

// GenerateConfig selects the code generator.
type GenerateConfig struct {
	Kind        string `yaml:"kind"`
	Command     string `yaml:"command"`
	Timeout     string `yaml:"timeout"`
	TemplateDir string `yaml:"template_dir"`
}

// ChangelogConfig configures the changelog feed monitor.
type ChangelogConfig struct {
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
	Timeout  string   `yaml:"timeout"`
	Cache    string   `yaml:"cache"`
}

// AuditConfig configures the audit database.
type AuditConfig struct {
	Enabled *bool  `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// CredentialsConfig lists environment variables that must be set.
type CredentialsConfig struct {
	Required []string `yaml:"required"`
}

// BlockOnUnknown reports whether an unknown CI status blocks deployment.
func (d DeployConfig) BlockOnUnknown() bool {
	return d.BlockOnUnknownCI == nil || *d.BlockOnUnknownCI
}

// IsEnabled reports whether the audit database is used.
func (a AuditConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Duration parses s, returning fallback when s is empty or invalid.
// Validate reports invalid values.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
