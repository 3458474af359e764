// Package pipeline runs the detect, update, validate and deploy state machine
// for upstream API changes, rolling the code tree back when a stage fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/backup"
	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/ci"
	"github.com/bencmd88/venicegate/internal/classify"
	"github.com/bencmd88/venicegate/internal/generate"
	"github.com/bencmd88/venicegate/internal/snapshot"
	"github.com/bencmd88/venicegate/internal/vcs"
)

// ErrForceNotInteractive is returned when force is requested without a way to confirm it.
var ErrForceNotInteractive = errors.New("--force requires an interactive confirmation")

// SpecSource fetches the upstream specification.
type SpecSource interface {
	Fetch(ctx context.Context) (*apispec.Document, []byte, error)
}

// SnapshotStore persists the last deployed specification and the change log.
type SnapshotStore interface {
	Load() (*apispec.Document, error)
	Save(raw []byte) error
	AppendChange(cs *snapshot.ChangeSet) error
}

// Validator is the safety gate.
type Validator interface {
	Validate(ctx context.Context, cs *snapshot.ChangeSet) (*checks.Verdict, *backup.Handle, error)
}

// CIOracle reports CI health.
type CIOracle interface {
	SafetyStatus(ctx context.Context, branch string, lookback time.Duration) (*ci.Status, error)
	WaitForCompletion(ctx context.Context, branch string, timeout time.Duration) (*ci.Status, error)
}

// Repository is the git working tree being deployed.
type Repository interface {
	Trunk() string
	CurrentBranch(ctx context.Context) (string, error)
	Status(ctx context.Context) ([]string, error)
	CreateBranch(ctx context.Context, name string) error
	Checkout(ctx context.Context, name string) error
	CommitAll(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, branch string) error
	Merge(ctx context.Context, branch, message string) error
	DeleteBranch(ctx context.Context, name string, remote bool) error
}

// BackupCreator snapshots the mutable part of the code tree.
type BackupCreator interface {
	Create() (*backup.Handle, error)
}

// Recorder mirrors a run to an audit store. Errors are logged, never fatal.
type Recorder interface {
	RecordStep(ctx context.Context, runID string, rec Record) error
	RecordChecks(ctx context.Context, runID string, v *checks.Verdict) error
	RecordChangeSet(ctx context.Context, runID string, cs *snapshot.ChangeSet) error
}

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Deps are the collaborators of a Pipeline. Recorder and Runs are optional.
type Deps struct {
	Source    SpecSource
	Snapshots SnapshotStore
	Gate      Validator
	CI        CIOracle
	Repo      Repository
	Backups   BackupCreator
	Generator generate.Generator
	Recorder  Recorder
	Runs      *RunStore
}

// Options tune a single run.
type Options struct {
	DryRun           bool
	Force            bool
	Confirm          ConfirmFunc
	RequiredTools    []string
	LookPath         vcs.LookPathFunc
	BlockOnUnknownCI bool
	CILookback       time.Duration
	CITimeout        time.Duration
	// OnRecord is called for every log record as it is appended.
	OnRecord func(Record)
}

// Pipeline is the deployment state machine.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CILookback <= 0 {
		opts.CILookback = ci.DefaultLookback
	}
	if opts.CITimeout <= 0 {
		opts.CITimeout = ci.DefaultWaitLimit
	}
	if deps.Generator == nil {
		deps.Generator = generate.Noop{}
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// run carries the mutable state of one Run call.
type run struct {
	ctx    context.Context
	res    *Result
	doc    *apispec.Document
	raw    []byte
	backup *backup.Handle

	branchCreated bool
	pushed        bool
}

// Run executes every stage in order. The returned error is non-nil only when
// the run could not start; stage failures are reported through Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.opts.Force && !p.opts.DryRun && p.opts.Confirm == nil {
		return nil, ErrForceNotInteractive
	}
	start := p.now()
	r := &run{
		ctx: ctx,
		res: &Result{
			RunID:     fmt.Sprintf("deploy-%d", start.UnixNano()),
			Status:    ResultFailed,
			DryRun:    p.opts.DryRun,
			StartedAt: start,
		},
	}
	p.logger.Info("deployment started", zap.String("run_id", r.res.RunID), zap.Bool("dry_run", p.opts.DryRun))

	p.execute(r)

	r.res.FinishedAt = p.now()
	p.logger.Info("deployment finished",
		zap.String("run_id", r.res.RunID),
		zap.String("status", r.res.Status),
		zap.Duration("duration", r.res.Duration()),
	)
	if p.deps.Runs != nil && !p.opts.DryRun {
		if err := p.deps.Runs.Save(r.res); err != nil {
			p.logger.Warn("saving deployment result", zap.Error(err))
		}
	}
	return r.res, nil
}

func (p *Pipeline) execute(r *run) {
	if !p.prereqs(r) {
		return
	}
	if !p.detect(r) {
		return
	}
	if p.opts.DryRun {
		for _, stage := range Stages[2:] {
			p.record(r, stage, StatusSkip, "dry run")
		}
		r.res.Status = ResultSuccess
		return
	}
	if !p.branch(r) {
		return
	}
	steps := []func(*run) (ok, cont bool){p.generate, p.validate, p.commit, p.ciWait, p.merge}
	for _, step := range steps {
		ok, cont := step(r)
		if !ok {
			p.rollback(r)
			return
		}
		if !cont {
			break
		}
	}
	p.saveSnapshot(r)
	p.cleanup(r)
	r.res.Status = ResultSuccess
}

func (p *Pipeline) prereqs(r *run) bool {
	p.record(r, StagePrereqs, StatusStart, "checking tools, working tree and CI")

	tools := append([]string{"git", "gh"}, p.opts.RequiredTools...)
	if missing := vcs.MissingTools(p.opts.LookPath, tools...); len(missing) > 0 {
		return p.fail(r, StagePrereqs, fmt.Errorf("missing tools: %s", strings.Join(missing, ", ")))
	}

	current, err := p.deps.Repo.CurrentBranch(r.ctx)
	if err != nil {
		return p.fail(r, StagePrereqs, err)
	}
	if trunk := p.deps.Repo.Trunk(); current != trunk {
		return p.fail(r, StagePrereqs, fmt.Errorf("deployments start from %s, currently on %s", trunk, current))
	}

	dirty, err := p.deps.Repo.Status(r.ctx)
	if err != nil {
		return p.fail(r, StagePrereqs, err)
	}
	if len(dirty) > 0 {
		p.record(r, StagePrereqs, StatusWarn, fmt.Sprintf("working tree has %d uncommitted changes", len(dirty)))
	}

	st, err := p.deps.CI.SafetyStatus(r.ctx, p.deps.Repo.Trunk(), p.opts.CILookback)
	if err != nil {
		return p.fail(r, StagePrereqs, fmt.Errorf("ci status: %w", err))
	}
	r.res.CI = st
	if ci.Blocks(st.Status, p.opts.BlockOnUnknownCI) {
		return p.fail(r, StagePrereqs, fmt.Errorf("CI is %s: %s", st.Status, st.Message))
	}
	if st.Status != ci.StatusSafe {
		p.record(r, StagePrereqs, StatusWarn, fmt.Sprintf("CI is %s: %s", st.Status, st.Message))
	}
	p.record(r, StagePrereqs, StatusPass, "prerequisites met")
	return true
}

func (p *Pipeline) detect(r *run) bool {
	p.record(r, StageDetect, StatusStart, "fetching upstream specification")

	doc, raw, err := p.deps.Source.Fetch(r.ctx)
	if err != nil {
		return p.fail(r, StageDetect, err)
	}
	prev, err := p.deps.Snapshots.Load()
	if err != nil {
		return p.fail(r, StageDetect, fmt.Errorf("load snapshot: %w", err))
	}
	cs := snapshot.Diff(prev, doc)
	cs.Timestamp = p.now()
	r.doc, r.raw = doc, raw

	if cs.IsEmpty() {
		p.record(r, StageDetect, StatusSkip, cs.Summary)
		r.res.Status = ResultSkipped
		return false
	}
	c := classify.Classify(cs)
	r.res.ChangeSet = cs
	r.res.Classification = &c
	if !p.opts.DryRun {
		if err := p.deps.Snapshots.AppendChange(cs); err != nil {
			p.record(r, StageDetect, StatusWarn, "could not log change set: "+err.Error())
		}
		if p.deps.Recorder != nil {
			if err := p.deps.Recorder.RecordChangeSet(r.ctx, r.res.RunID, cs); err != nil {
				p.logger.Warn("audit change set", zap.Error(err))
			}
		}
	}
	p.record(r, StageDetect, StatusPass, fmt.Sprintf("%s (worst risk %s)", cs.Summary, c.Worst()))
	return true
}

func (p *Pipeline) branch(r *run) bool {
	name := vcs.BranchName(r.doc.Version, p.now())
	p.record(r, StageBranch, StatusStart, name)
	if err := p.deps.Repo.CreateBranch(r.ctx, name); err != nil {
		return p.fail(r, StageBranch, err)
	}
	r.branchCreated = true
	r.res.Branch = name
	p.record(r, StageBranch, StatusPass, "created "+name)
	return true
}

func (p *Pipeline) generate(r *run) (bool, bool) {
	h, err := p.deps.Backups.Create()
	if err != nil {
		return p.fail(r, StageGenerate, fmt.Errorf("backup: %w", err)), false
	}
	r.backup = h
	p.record(r, StageGenerate, StatusStart, "backup at "+h.Path)

	res, err := p.deps.Generator.Generate(r.ctx, r.res.ChangeSet, r.doc)
	if err != nil {
		return p.fail(r, StageGenerate, err), false
	}
	p.record(r, StageGenerate, StatusPass, fmt.Sprintf("%d update tasks applied", res.Tasks))
	return true, true
}

func (p *Pipeline) validate(r *run) (bool, bool) {
	if p.opts.Force {
		ok, err := p.opts.Confirm(r.ctx, fmt.Sprintf("Skip safety validation and deploy %d API changes?", r.res.ChangeSet.Total()))
		if err != nil {
			return p.fail(r, StageValidate, fmt.Errorf("confirm force: %w", err)), false
		}
		if !ok {
			return p.fail(r, StageValidate, errors.New("force declined")), false
		}
		r.res.Forced = true
		p.record(r, StageValidate, StatusSkip, "safety validation skipped (--force)")
		return true, true
	}

	p.record(r, StageValidate, StatusStart, "running safety gate")
	v, gateBackup, err := p.deps.Gate.Validate(r.ctx, r.res.ChangeSet)
	// The pipeline's own pre-GENERATE backup is the rollback point.
	if gateBackup != nil {
		if rerr := gateBackup.Release(); rerr != nil {
			p.logger.Warn("release gate backup", zap.String("path", gateBackup.Path), zap.Error(rerr))
		}
	}
	r.res.Verdict = v
	if v != nil && p.deps.Recorder != nil {
		if rerr := p.deps.Recorder.RecordChecks(r.ctx, r.res.RunID, v); rerr != nil {
			p.logger.Warn("audit checks", zap.Error(rerr))
		}
	}
	if err != nil {
		return p.fail(r, StageValidate, err), false
	}
	counts := v.Counts()
	msg := fmt.Sprintf("%d passed, %d warnings, %d skipped", counts[checks.StatusPass], counts[checks.StatusWarn], counts[checks.StatusSkip])
	if counts[checks.StatusWarn] > 0 {
		p.record(r, StageValidate, StatusWarn, msg)
	} else {
		p.record(r, StageValidate, StatusPass, msg)
	}
	return true, true
}

func (p *Pipeline) commit(r *run) (bool, bool) {
	p.record(r, StageCommit, StatusStart, "committing generated changes")
	sha, err := p.deps.Repo.CommitAll(r.ctx, CommitMessage(r.res.ChangeSet, r.res.Classification))
	if errors.Is(err, vcs.ErrNothingToCommit) {
		p.record(r, StageCommit, StatusWarn, "no code changes to deploy")
		p.record(r, StageCIWait, StatusSkip, "nothing committed")
		p.record(r, StageMerge, StatusSkip, "nothing committed")
		return true, false
	}
	if err != nil {
		return p.fail(r, StageCommit, err), false
	}
	r.res.Commit = sha
	p.record(r, StageCommit, StatusPass, "committed "+shortSHA(sha))
	return true, true
}

func (p *Pipeline) ciWait(r *run) (bool, bool) {
	p.record(r, StageCIWait, StatusStart, "pushing "+r.res.Branch)
	if err := p.deps.Repo.Push(r.ctx, r.res.Branch); err != nil {
		return p.fail(r, StageCIWait, err), false
	}
	r.pushed = true

	st, err := p.deps.CI.WaitForCompletion(r.ctx, r.res.Branch, p.opts.CITimeout)
	if st != nil {
		r.res.CI = st
	}
	if err != nil {
		return p.fail(r, StageCIWait, err), false
	}
	if st.Status != ci.StatusSafe {
		return p.fail(r, StageCIWait, fmt.Errorf("CI is %s: %s", st.Status, st.Message)), false
	}
	p.record(r, StageCIWait, StatusPass, st.Message)
	return true, true
}

func (p *Pipeline) merge(r *run) (bool, bool) {
	p.record(r, StageMerge, StatusStart, "merging into "+p.deps.Repo.Trunk())
	msg := fmt.Sprintf("Merge %s: %s", r.res.Branch, r.res.ChangeSet.Summary)
	if err := p.deps.Repo.Merge(r.ctx, r.res.Branch, msg); err != nil {
		return p.fail(r, StageMerge, err), false
	}
	p.record(r, StageMerge, StatusPass, "merged "+r.res.Branch)
	return true, true
}

// saveSnapshot records the deployed specification so the next run diffs against it.
func (p *Pipeline) saveSnapshot(r *run) {
	if err := p.deps.Snapshots.Save(r.raw); err != nil {
		p.record(r, StageCleanup, StatusWarn, "snapshot not saved: "+err.Error())
	}
}

func (p *Pipeline) cleanup(r *run) {
	p.record(r, StageCleanup, StatusStart, "removing branch and transient artifacts")
	var result *multierror.Error
	if err := p.deps.Repo.Checkout(r.ctx, p.deps.Repo.Trunk()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.deps.Repo.DeleteBranch(r.ctx, r.res.Branch, r.pushed); err != nil {
		result = multierror.Append(result, err)
	}
	if r.backup != nil {
		if err := r.backup.Release(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := p.deps.Generator.Cleanup(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		p.record(r, StageCleanup, StatusWarn, flatten(err))
		return
	}
	p.record(r, StageCleanup, StatusPass, "cleanup complete")
}

// rollback returns the tree to its pre-GENERATE state. It is best-effort:
// every step runs and errors are collected and logged, never returned.
func (p *Pipeline) rollback(r *run) {
	p.record(r, StageRollback, StatusStart, "rolling back")
	r.res.RolledBack = true

	var result *multierror.Error
	if r.branchCreated {
		if err := p.deps.Repo.Checkout(r.ctx, p.deps.Repo.Trunk()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.backup != nil && !r.backup.Closed() {
		if err := r.backup.Restore(); err != nil {
			result = multierror.Append(result, fmt.Errorf("restore backup: %w", err))
		}
	}
	if r.branchCreated {
		if err := p.deps.Repo.DeleteBranch(r.ctx, r.res.Branch, r.pushed); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := p.deps.Generator.Cleanup(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		p.logger.Error("rollback incomplete", zap.String("run_id", r.res.RunID), zap.Error(err))
		p.record(r, StageRollback, StatusWarn, "rollback incomplete: "+flatten(err))
		return
	}
	p.record(r, StageRollback, StatusPass, "code tree restored")
}

// fail records a FAIL for stage and marks the run failed. It always returns false.
func (p *Pipeline) fail(r *run, stage string, err error) bool {
	r.res.Status = ResultFailed
	r.res.FailedStage = stage
	r.res.Error = err.Error()
	p.record(r, stage, StatusFail, err.Error())
	return false
}

func (p *Pipeline) record(r *run, step, status, message string) {
	rec := Record{Timestamp: p.now(), Step: step, Status: status, Message: message}
	r.res.Log = append(r.res.Log, rec)

	fields := []zap.Field{zap.String("run_id", r.res.RunID), zap.String("step", step), zap.String("status", status)}
	switch status {
	case StatusFail:
		p.logger.Error(message, fields...)
	case StatusWarn:
		p.logger.Warn(message, fields...)
	default:
		p.logger.Info(message, fields...)
	}
	if p.opts.OnRecord != nil {
		p.opts.OnRecord(rec)
	}
	if p.deps.Recorder != nil && !p.opts.DryRun {
		if err := p.deps.Recorder.RecordStep(r.ctx, r.res.RunID, rec); err != nil {
			p.logger.Warn("audit step", zap.Error(err))
		}
	}
}

func flatten(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		parts := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			parts = append(parts, e.Error())
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

// CommitMessage summarises a change set for the deployment commit.
func CommitMessage(cs *snapshot.ChangeSet, c *classify.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-update for API %s -> %s\n\n", cs.OldVersion, cs.NewVersion)
	b.WriteString(cs.Summary)
	b.WriteString("\n")
	list := func(title string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}
	params := cs.ReportParameters()
	keys := func(in []snapshot.ParamChange) []string {
		out := make([]string, 0, len(in))
		for _, p := range in {
			out = append(out, p.Key())
		}
		return out
	}
	list("New endpoints", cs.Endpoints.Added)
	list("Removed endpoints", cs.Endpoints.Removed)
	list("New schemas", cs.Schemas.Added)
	list("Removed schemas", cs.Schemas.Removed)
	list("Modified schemas", cs.Schemas.Modified)
	list("New parameters", keys(params.Added))
	list("Removed parameters", keys(params.Removed))
	list("Modified parameters", keys(params.Modified))
	if c != nil {
		counts := c.Counts()
		fmt.Fprintf(&b, "\nRisk: %d safe, %d caution, %d unsafe\n", counts[classify.Safe], counts[classify.Caution], counts[classify.Unsafe])
	}
	return b.String()
}
