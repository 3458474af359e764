package checks

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/backup"
	"github.com/bencmd88/venicegate/internal/classify"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// Check names, in the order the gate runs them.
const (
	CheckBackup     = "backup"
	CheckSyntax     = "syntax"
	CheckImports    = "imports"
	CheckParameters = "parameters"
	CheckLint       = "lint"
	CheckTests      = "tests"
	CheckContract   = "contract"
)

// Default per-check time budgets.
const (
	DefaultImportTimeout   = 30 * time.Second
	DefaultTestTimeout     = 300 * time.Second
	DefaultContractTimeout = 120 * time.Second
	DefaultLintTimeout     = 60 * time.Second
)

// APIKeyEnv names the environment variable holding the key for live contract checks.
const APIKeyEnv = "VENICE_API_KEY"

// GateConfig describes the repository under validation and how to check it.
type GateConfig struct {
	Root       string
	CodeDir    string
	Language   string
	Extensions []string

	// ImportCommand is run once per top-level module with {module}
	// substituted. Empty skips the imports check.
	ImportCommand string
	ImportTimeout time.Duration

	Lint           CheckConfig
	LintErrorCodes []string
	Tests          CheckConfig
	Contract       CheckConfig

	// ContractNeedsKey skips the contract check when APIKey is empty.
	ContractNeedsKey bool
	APIKey           string
}

// Gate runs the ordered safety checks against a code repository.
type Gate struct {
	cfg      GateConfig
	fs       afero.Fs
	runner   *Runner
	backups  *backup.Manager
	syntax   *SyntaxChecker
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// NewGate wires a Gate. fs is used for the syntax walk and module discovery;
// cmd runs every external command.
func NewGate(cfg GateConfig, fs afero.Fs, cmd CommandRunner, backups *backup.Manager, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := NewRunner(cmd)
	runner.Register("ruff", &RuffParser{ErrorCodes: cfg.LintErrorCodes})
	return &Gate{
		cfg:      cfg,
		fs:       fs,
		runner:   runner,
		backups:  backups,
		syntax:   NewSyntaxChecker(fs),
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// SetLookPath replaces the executable lookup used to detect missing tools.
func (g *Gate) SetLookPath(f func(string) (string, error)) {
	g.lookPath = f
}

// Validate backs up the code tree, then runs every check in order,
// continuing past failures. It never modifies the code tree. The returned
// handle is nil only when the backup itself failed; the caller owns it and
// must Restore or Release it. The error wraps ErrValidationFailed when the
// verdict did not pass.
func (g *Gate) Validate(ctx context.Context, cs *snapshot.ChangeSet) (*Verdict, *backup.Handle, error) {
	v := &Verdict{StartedAt: time.Now().UTC()}
	defer func() { v.FinishedAt = time.Now().UTC() }()

	start := time.Now()
	h, err := g.backups.Create()
	if err != nil {
		v.add(CheckResult{Check: CheckBackup, Status: StatusFail, Message: err.Error(), DurationMs: since(start)})
		g.log(v.Results[0])
		return v, nil, v.Err()
	}
	v.BackupPath = h.Path
	v.add(CheckResult{Check: CheckBackup, Status: StatusPass, Message: "backup created: " + h.Path, DurationMs: since(start)})
	g.log(v.Results[0])

	steps := []func(context.Context, *snapshot.ChangeSet) CheckResult{
		g.checkSyntax,
		g.checkImports,
		g.checkParameters,
		g.checkLint,
		g.checkTests,
		g.checkContract,
	}
	for _, step := range steps {
		start := time.Now()
		r := step(ctx, cs)
		r.DurationMs = since(start)
		v.add(r)
		g.log(r)
	}
	return v, h, v.Err()
}

func (g *Gate) log(r CheckResult) {
	fields := []zap.Field{
		zap.String("check", r.Check),
		zap.String("status", string(r.Status)),
		zap.String("message", r.Message),
		zap.Int("duration_ms", r.DurationMs),
	}
	switch r.Status {
	case StatusFail:
		g.logger.Warn("safety check failed", fields...)
	default:
		g.logger.Info("safety check", fields...)
	}
}

func (g *Gate) codePath() string {
	return filepath.Join(g.cfg.Root, g.cfg.CodeDir)
}

func (g *Gate) checkSyntax(ctx context.Context, _ *snapshot.ChangeSet) CheckResult {
	r := CheckResult{Check: CheckSyntax}
	configured := g.cfg.Extensions
	if len(configured) == 0 {
		configured = defaultExtensions(g.cfg.Language)
	}
	var exts, unsupported []string
	for _, ext := range configured {
		if SupportedExtension(ext) {
			exts = append(exts, ext)
		} else {
			unsupported = append(unsupported, ext)
		}
	}
	if len(exts) == 0 {
		r.Status, r.Message = StatusSkip, "no grammar for extensions: "+strings.Join(unsupported, ", ")
		return r
	}

	files, errs, err := g.syntax.CheckTree(ctx, g.codePath(), exts)
	switch {
	case err != nil:
		r.Status, r.Message = StatusFail, err.Error()
	case len(errs) > 0:
		lines := make([]string, 0, len(errs))
		for _, e := range errs {
			lines = append(lines, e.String())
		}
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%d syntax errors: %s", len(errs), strings.Join(firstN(lines, 3), "; "))
		r.Details = errs
	case files == 0:
		r.Status, r.Message = StatusSkip, "no source files found"
	default:
		r.Status, r.Message = StatusPass, fmt.Sprintf("%d files parsed", files)
	}
	return r
}

func (g *Gate) checkImports(ctx context.Context, _ *snapshot.ChangeSet) CheckResult {
	r := CheckResult{Check: CheckImports}
	if g.cfg.ImportCommand == "" {
		r.Status, r.Message = StatusSkip, "no import command configured"
		return r
	}
	modules, err := TopLevelModules(g.fs, g.cfg.Root, g.cfg.CodeDir, g.cfg.Language)
	if err != nil {
		r.Status, r.Message = StatusFail, err.Error()
		return r
	}
	if len(modules) == 0 {
		r.Status, r.Message = StatusSkip, "no modules found"
		return r
	}

	timeout := g.cfg.ImportTimeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}

	var failed []string
	failures := map[string]string{}
	for _, mod := range modules {
		res, err := g.runner.Run(ctx, g.cfg.Root, CheckConfig{
			Name:    "import " + mod,
			Command: strings.ReplaceAll(g.cfg.ImportCommand, "{module}", mod),
			Parser:  "generic",
			Timeout: timeout,
		})
		switch {
		case err != nil:
			failed = append(failed, mod)
			failures[mod] = err.Error()
		case !res.Passed:
			failed = append(failed, mod)
			failures[mod] = res.Summary + ": " + tail(combine(res.Stdout, res.Stderr), 500)
		}
	}

	if len(failed) > 0 {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%d of %d modules failed to import: %s", len(failed), len(modules), strings.Join(failed, ", "))
		r.Details = failures
		return r
	}
	r.Status, r.Message = StatusPass, fmt.Sprintf("%d modules import cleanly", len(modules))
	return r
}

func (g *Gate) checkParameters(_ context.Context, cs *snapshot.ChangeSet) CheckResult {
	r := CheckResult{Check: CheckParameters}
	if cs == nil {
		r.Status, r.Message = StatusSkip, "no change set provided"
		return r
	}
	c := classify.Classify(cs)
	unsafe := c.Filter(classify.Unsafe)
	caution := c.Filter(classify.Caution)
	r.Details = c

	describe := func(ls []classify.Labeled) string {
		parts := make([]string, 0, len(ls))
		for _, l := range ls {
			parts = append(parts, fmt.Sprintf("%s (%s)", l.ID, l.Reason))
		}
		return strings.Join(firstN(parts, 5), "; ")
	}

	switch {
	case len(unsafe) > 0:
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%d unsafe changes: %s", len(unsafe), describe(unsafe))
	case len(caution) > 0:
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%d changes need review: %s", len(caution), describe(caution))
	default:
		r.Status = StatusPass
		r.Message = fmt.Sprintf("%d changes, all safe", len(c.Labels()))
	}
	return r
}

func (g *Gate) checkLint(ctx context.Context, _ *snapshot.ChangeSet) CheckResult {
	r := CheckResult{Check: CheckLint}
	cfg := g.cfg.Lint
	if cfg.Command == "" {
		r.Status, r.Message = StatusSkip, "no lint command configured"
		return r
	}
	if tool := firstWord(cfg.Command); tool != "" {
		if _, err := g.lookPath(tool); err != nil {
			r.Status, r.Message = StatusSkip, (&ToolingUnavailableError{Tool: tool}).Error()
			return r
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLintTimeout
	}
	cfg.Name = CheckLint

	res, err := g.runner.Run(ctx, g.cfg.Root, cfg)
	if err != nil {
		r.Status, r.Message = StatusFail, err.Error()
		return r
	}
	r.Details = res.Findings
	r.Message = res.Summary
	switch {
	case res.Unavailable:
		r.Status = StatusSkip
	case res.TimedOut || !res.Passed:
		r.Status = StatusFail
	case res.Warned:
		r.Status = StatusWarn
	default:
		r.Status = StatusPass
	}
	return r
}

func (g *Gate) checkTests(ctx context.Context, _ *snapshot.ChangeSet) CheckResult {
	cfg := g.cfg.Tests
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTestTimeout
	}
	return g.runCommandCheck(ctx, CheckTests, cfg)
}

func (g *Gate) checkContract(ctx context.Context, _ *snapshot.ChangeSet) CheckResult {
	if g.cfg.Contract.Command != "" && g.cfg.ContractNeedsKey && g.cfg.APIKey == "" {
		return CheckResult{Check: CheckContract, Status: StatusSkip, Message: "no API key configured; live contract tests skipped"}
	}
	cfg := g.cfg.Contract
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultContractTimeout
	}
	if cfg.Parser == "" {
		cfg.Parser = "contract"
	}
	return g.runCommandCheck(ctx, CheckContract, cfg)
}

// runCommandCheck maps a runner result onto PASS/WARN/FAIL. Timeouts,
// missing tools and harness errors all fail.
func (g *Gate) runCommandCheck(ctx context.Context, name string, cfg CheckConfig) CheckResult {
	r := CheckResult{Check: name}
	if cfg.Command == "" {
		r.Status, r.Message = StatusSkip, "no command configured"
		return r
	}
	cfg.Name = name

	res, err := g.runner.Run(ctx, g.cfg.Root, cfg)
	if err != nil {
		r.Status, r.Message = StatusFail, err.Error()
		return r
	}
	r.Message = res.Summary
	r.Details = res.Findings
	switch {
	case res.TimedOut, res.Unavailable, !res.Passed:
		r.Status = StatusFail
	case res.Warned:
		r.Status = StatusWarn
	default:
		r.Status = StatusPass
	}
	return r
}

func defaultExtensions(language string) []string {
	if language == "go" {
		return []string{".go"}
	}
	return []string{".py"}
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return append(s[:n:n], fmt.Sprintf("and %d more", len(s)-n))
}

func since(t time.Time) int {
	return int(time.Since(t).Milliseconds())
}
