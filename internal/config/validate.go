package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for checks.
var recognizedParsers = map[string]bool{
	"ruff":     true,
	"pytest":   true,
	"gotest":   true,
	"contract": true,
	"generic":  true,
}

var recognizedLanguages = map[string]bool{
	"python": true,
	"go":     true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(cfg.Spec.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("spec.url", "must be an absolute URL, got %q", cfg.Spec.URL)
	}
	if cfg.Spec.MaxChanges < 0 {
		add("spec.max_changes", "must not be negative")
	}

	// Restoring a backup replaces code_dir wholesale, so it must be a strict
	// subdirectory of the repository root.
	switch dir := cfg.Repository.CodeDir; {
	case dir == "":
		add("repository.code_dir", "is required")
	case filepath.IsAbs(dir):
		add("repository.code_dir", "must be relative to repository.root, got %q", dir)
	case !filepath.IsLocal(dir):
		add("repository.code_dir", "must stay inside repository.root, got %q", dir)
	case filepath.Clean(dir) == ".":
		add("repository.code_dir", "must be a subdirectory, not the repository root")
	}
	if !recognizedLanguages[cfg.Repository.Language] {
		add("repository.language", "unrecognized language %q", cfg.Repository.Language)
	}

	for _, c := range []struct {
		name string
		cmd  CheckCommand
	}{
		{"imports", cfg.Checks.Imports},
		{"lint", cfg.Checks.Lint},
		{"tests", cfg.Checks.Tests},
		{"contract", cfg.Checks.Contract},
	} {
		if c.cmd.Parser != "" && !recognizedParsers[c.cmd.Parser] {
			add("checks."+c.name+".parser", "unrecognized parser %q", c.cmd.Parser)
		}
		validateDuration("checks."+c.name+".timeout", c.cmd.Timeout, &errs)
	}

	validateDuration("spec.timeout", cfg.Spec.Timeout, &errs)
	validateDuration("ci.poll_interval", cfg.CI.PollInterval, &errs)
	validateDuration("ci.lookback", cfg.CI.Lookback, &errs)
	validateDuration("ci.timeout", cfg.CI.Timeout, &errs)
	validateDuration("generate.timeout", cfg.Generate.Timeout, &errs)
	validateDuration("changelog.timeout", cfg.Changelog.Timeout, &errs)

	switch cfg.Generate.Kind {
	case "noop":
	case "command":
		if cfg.Generate.Command == "" {
			add("generate.command", "is required when kind is command")
		}
	default:
		add("generate.kind", "must be noop or command, got %q", cfg.Generate.Kind)
	}

	if cfg.Changelog.Enabled && cfg.Changelog.URL == "" {
		add("changelog.url", "is required when the changelog monitor is enabled")
	}

	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "unrecognized level %q", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		add("logging", "max_size_mb and max_backups must not be negative")
	}

	for i, name := range cfg.Credentials.Required {
		if name == "" {
			add(fmt.Sprintf("credentials.required[%d]", i), "is empty")
		}
	}
	return errs
}

func validateDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d <= 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must be positive"})
	}
}
