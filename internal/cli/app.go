package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/backup"
	"github.com/bencmd88/venicegate/internal/changelog"
	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/ci"
	"github.com/bencmd88/venicegate/internal/config"
	"github.com/bencmd88/venicegate/internal/db"
	"github.com/bencmd88/venicegate/internal/generate"
	"github.com/bencmd88/venicegate/internal/logging"
	"github.com/bencmd88/venicegate/internal/pipeline"
	"github.com/bencmd88/venicegate/internal/snapshot"
	"github.com/bencmd88/venicegate/internal/vcs"
)

// app holds the resolved configuration and logger for one command.
type app struct {
	cfg    *config.Config
	root   string
	logger *zap.Logger
	fs     afero.Fs
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// loadApp reads the configuration, applies the global flags and installs the
// process logger. Commands that act on the repository pass requireCreds; for
// them the configuration must also validate.
func loadApp(cmd *cobra.Command, requireCreds bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetGlobal(logger)

	if requireCreds {
		if errs := config.Validate(cfg); len(errs) > 0 {
			var result *multierror.Error
			for _, e := range errs {
				result = multierror.Append(result, e)
			}
			return nil, fmt.Errorf("invalid configuration: %w", result)
		}
		if err := config.CheckCredentials(cfg, nil); err != nil {
			return nil, err
		}
	}

	root, err := filepath.Abs(cfg.Repository.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}
	logger.Debug("configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("root", root),
		zap.String("command", cmd.CommandPath()),
	)
	return &app{cfg: cfg, root: root, logger: logger, fs: afero.NewOsFs()}, nil
}

// path resolves p against the repository root unless it is absolute.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

func (a *app) snapshots() *snapshot.Store {
	return snapshot.NewStore(a.path(a.cfg.Spec.SnapshotDir), a.cfg.Spec.MaxChanges)
}

func (a *app) fetcher() *apispec.Fetcher {
	return apispec.NewFetcher(a.cfg.Spec.URL, config.Duration(a.cfg.Spec.Timeout, 30*time.Second), nil, a.logger)
}

func (a *app) backups() *backup.Manager {
	r := a.cfg.Repository
	return backup.NewManager(a.fs, a.root, r.CodeDir, r.BackupFiles)
}

func (a *app) gate(backups *backup.Manager) *checks.Gate {
	r := a.cfg.Repository
	c := a.cfg.Checks
	gc := checks.GateConfig{
		Root:             a.root,
		CodeDir:          r.CodeDir,
		Language:         r.Language,
		Extensions:       r.Extensions,
		ImportCommand:    c.Imports.Command,
		ImportTimeout:    config.Duration(c.Imports.Timeout, 30*time.Second),
		Lint:             checkConfig("lint", c.Lint, time.Minute),
		LintErrorCodes:   c.Lint.ErrorCodes,
		Tests:            checkConfig("tests", c.Tests, 5*time.Minute),
		Contract:         checkConfig("contract", c.Contract, 2*time.Minute),
		ContractNeedsKey: c.Contract.NeedsKey,
		APIKey:           os.Getenv(checks.APIKeyEnv),
	}
	return checks.NewGate(gc, a.fs, &checks.ExecRunner{}, backups, a.logger)
}

func checkConfig(name string, c config.CheckCommand, fallback time.Duration) checks.CheckConfig {
	return checks.CheckConfig{
		Name:    name,
		Command: c.Command,
		Parser:  c.Parser,
		Timeout: config.Duration(c.Timeout, fallback),
	}
}

func (a *app) oracle() *ci.Oracle {
	o := ci.NewOracle(&ci.ExecRunner{Dir: a.root}, a.logger)
	o.SetPollInterval(config.Duration(a.cfg.CI.PollInterval, ci.DefaultPoll))
	return o
}

func (a *app) repo() *vcs.Repo {
	return vcs.NewRepo(&vcs.ExecGit{}, a.root, a.cfg.Repository.Trunk)
}

func (a *app) generator() (generate.Generator, error) {
	g := a.cfg.Generate
	gc := generate.Config{
		Kind:    g.Kind,
		Command: g.Command,
		Dir:     a.root,
		Timeout: config.Duration(g.Timeout, 10*time.Minute),
	}
	if g.TemplateDir != "" {
		gc.TemplateDir = a.path(g.TemplateDir)
	}
	return generate.New(gc, &checks.ExecRunner{}, a.logger)
}

func (a *app) changelogMonitor() *changelog.Monitor {
	cl := a.cfg.Changelog
	return changelog.NewMonitor(
		cl.URL,
		os.Getenv(changelog.TokenEnv),
		a.path(cl.Cache),
		cl.Keywords,
		config.Duration(cl.Timeout, 30*time.Second),
		a.logger,
	)
}

func (a *app) runStore() *pipeline.RunStore {
	return pipeline.NewRunStore(a.path(a.cfg.Deploy.StateDir))
}

// openAudit opens and migrates the audit database. It returns nil when
// auditing is disabled.
func (a *app) openAudit() (*db.DB, error) {
	if !a.cfg.Audit.IsEnabled() {
		return nil, nil
	}
	dsn := a.cfg.Audit.DSN
	if dsn == "" {
		p, err := db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		dsn = p
	}
	d, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return d, nil
}
