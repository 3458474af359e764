package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/backup"
	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/ci"
	"github.com/bencmd88/venicegate/internal/generate"
	"github.com/bencmd88/venicegate/internal/snapshot"
	"github.com/bencmd88/venicegate/internal/vcs"
)

const oldSpec = `
info: {version: "1.0"}
paths:
  /chat/completions: {post: {}}
components:
  schemas:
    ChatRequest:
      properties:
        model: {type: string}
`

const newSpec = `
info: {version: "1.1"}
paths:
  /chat/completions: {post: {}}
  /audio/speech: {post: {}}
components:
  schemas:
    ChatRequest:
      properties:
        model: {type: string}
        seed: {type: integer}
`

type fakeSource struct {
	raw string
	err error
}

func (f *fakeSource) Fetch(ctx context.Context) (*apispec.Document, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	doc, err := apispec.Parse([]byte(f.raw))
	return doc, []byte(f.raw), err
}

type fakeSnapshots struct {
	current string
	saved   []string
	changes int
}

func (f *fakeSnapshots) Load() (*apispec.Document, error) {
	if f.current == "" {
		return apispec.Empty(), nil
	}
	return apispec.Parse([]byte(f.current))
}

func (f *fakeSnapshots) Save(raw []byte) error {
	f.saved = append(f.saved, string(raw))
	f.current = string(raw)
	return nil
}

func (f *fakeSnapshots) AppendChange(cs *snapshot.ChangeSet) error {
	f.changes++
	return nil
}

type fakeGate struct {
	calls    int
	verdict  *checks.Verdict
	err      error
	backups  *backup.Manager
	released bool // hand back an already consumed handle
}

func (f *fakeGate) Validate(ctx context.Context, cs *snapshot.ChangeSet) (*checks.Verdict, *backup.Handle, error) {
	f.calls++
	h, err := f.backups.Create()
	if err != nil {
		return nil, nil, err
	}
	if f.released {
		h.Release()
	}
	return f.verdict, h, f.err
}

type fakeCI struct {
	trunk    *ci.Status
	wait     *ci.Status
	waitErr  error
	waits    []string
	statuses int
}

func (f *fakeCI) SafetyStatus(ctx context.Context, branch string, lookback time.Duration) (*ci.Status, error) {
	f.statuses++
	return f.trunk, nil
}

func (f *fakeCI) WaitForCompletion(ctx context.Context, branch string, timeout time.Duration) (*ci.Status, error) {
	f.waits = append(f.waits, branch)
	return f.wait, f.waitErr
}

// fakeRepo records git operations as strings.
type fakeRepo struct {
	calls     []string
	current   string
	dirty     []string
	commitErr error
	mergeErr  error
}

func (f *fakeRepo) Trunk() string { return "main" }
func (f *fakeRepo) CurrentBranch(ctx context.Context) (string, error) {
	if f.current == "" {
		return "main", nil
	}
	return f.current, nil
}
func (f *fakeRepo) Status(ctx context.Context) ([]string, error) {
	f.calls = append(f.calls, "status")
	return f.dirty, nil
}
func (f *fakeRepo) CreateBranch(ctx context.Context, name string) error {
	f.calls = append(f.calls, "branch "+name)
	return nil
}
func (f *fakeRepo) Checkout(ctx context.Context, name string) error {
	f.calls = append(f.calls, "checkout "+name)
	return nil
}
func (f *fakeRepo) CommitAll(ctx context.Context, message string) (string, error) {
	f.calls = append(f.calls, "commit")
	if f.commitErr != nil {
		return "", f.commitErr
	}
	return "0123456789abcdef", nil
}
func (f *fakeRepo) Push(ctx context.Context, branch string) error {
	f.calls = append(f.calls, "push "+branch)
	return nil
}
func (f *fakeRepo) Merge(ctx context.Context, branch, message string) error {
	f.calls = append(f.calls, "merge "+branch)
	return f.mergeErr
}
func (f *fakeRepo) DeleteBranch(ctx context.Context, name string, remote bool) error {
	if remote {
		f.calls = append(f.calls, "delete-remote "+name)
	} else {
		f.calls = append(f.calls, "delete "+name)
	}
	return nil
}

func (f *fakeRepo) has(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// editGenerator rewrites the code tree the way an agent would.
type editGenerator struct {
	fs       afero.Fs
	cleanups int
}

func (g *editGenerator) Generate(ctx context.Context, cs *snapshot.ChangeSet, spec *apispec.Document) (*generate.Result, error) {
	afero.WriteFile(g.fs, "/repo/pyvenice/chat.py", []byte("def chat(seed=None):\n    return 2\n"), 0o644)
	afero.WriteFile(g.fs, "/repo/pyvenice/audio.py", []byte("def speech():\n    pass\n"), 0o644)
	g.fs.Remove("/repo/pyvenice/image.py")
	afero.WriteFile(g.fs, "/repo/pyproject.toml", []byte("[project]\nversion = \"2\"\n"), 0o644)
	return &generate.Result{Tasks: 2}, nil
}

func (g *editGenerator) Cleanup() error {
	g.cleanups++
	return nil
}

type fakeRecorder struct {
	steps   []Record
	checks  int
	changes int
}

func (f *fakeRecorder) RecordStep(ctx context.Context, runID string, rec Record) error {
	f.steps = append(f.steps, rec)
	return nil
}
func (f *fakeRecorder) RecordChecks(ctx context.Context, runID string, v *checks.Verdict) error {
	f.checks++
	return nil
}
func (f *fakeRecorder) RecordChangeSet(ctx context.Context, runID string, cs *snapshot.ChangeSet) error {
	f.changes++
	return nil
}

type harness struct {
	fs        afero.Fs
	source    *fakeSource
	snapshots *fakeSnapshots
	gate      *fakeGate
	ci        *fakeCI
	repo      *fakeRepo
	gen       *editGenerator
	recorder  *fakeRecorder
	opts      Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, c := range map[string]string{
		"/repo/pyvenice/__init__.py": "",
		"/repo/pyvenice/chat.py":     "def chat():\n    return 1\n",
		"/repo/pyvenice/image.py":    "def image():\n    return 1\n",
		"/repo/pyproject.toml":       "[project]\n",
	} {
		if err := afero.WriteFile(fs, p, []byte(c), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	backups := backup.NewManager(fs, "/repo", "pyvenice", []string{"pyproject.toml"})
	backups.SetTempDir("/tmp")

	return &harness{
		fs:        fs,
		source:    &fakeSource{raw: newSpec},
		snapshots: &fakeSnapshots{current: oldSpec},
		gate: &fakeGate{
			verdict: &checks.Verdict{Results: []checks.CheckResult{{Check: "syntax", Status: checks.StatusPass}}},
			backups: backups,
		},
		ci: &fakeCI{
			trunk: &ci.Status{Status: ci.StatusSafe, Message: "High success rate: 100.0% (5/5)"},
			wait:  &ci.Status{Status: ci.StatusSafe, Message: "High success rate: 100.0% (1/1)"},
		},
		repo:     &fakeRepo{},
		gen:      &editGenerator{fs: fs},
		recorder: &fakeRecorder{},
		opts: Options{
			LookPath:         func(name string) (string, error) { return "/usr/bin/" + name, nil },
			BlockOnUnknownCI: true,
		},
	}
}

func (h *harness) pipeline() *Pipeline {
	backups := backup.NewManager(h.fs, "/repo", "pyvenice", []string{"pyproject.toml"})
	backups.SetTempDir("/tmp")
	p := New(Deps{
		Source:    h.source,
		Snapshots: h.snapshots,
		Gate:      h.gate,
		CI:        h.ci,
		Repo:      h.repo,
		Backups:   backups,
		Generator: h.gen,
		Recorder:  h.recorder,
	}, h.opts, nil)
	p.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return p
}

// treeHash hashes every file under /repo except the backup area.
func treeHash(t *testing.T, fs afero.Fs) string {
	t.Helper()
	files := map[string]string{}
	err := afero.Walk(fs, "/repo", func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := afero.ReadFile(fs, path)
		files[path] = string(data)
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	h, err := apispec.ContentHash(files)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func steps(res *Result) string {
	var parts []string
	for _, r := range res.Log {
		if r.Status == StatusStart {
			continue
		}
		parts = append(parts, r.Step+"="+r.Status)
	}
	return strings.Join(parts, " ")
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)
	res, err := h.pipeline().Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultSuccess {
		t.Fatalf("expected success, got %s (%s): %s", res.Status, res.Error, steps(res))
	}

	want := "PREREQS=PASS DETECT=PASS BRANCH=PASS GENERATE=PASS VALIDATE=PASS COMMIT=PASS CI_WAIT=PASS MERGE=PASS CLEANUP=PASS"
	if got := steps(res); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	branch := "auto-deploy-1.1-1700000000"
	if res.Branch != branch {
		t.Errorf("expected branch %q, got %q", branch, res.Branch)
	}
	wantCalls := []string{"status", "branch " + branch, "commit", "push " + branch, "merge " + branch, "checkout main", "delete-remote " + branch}
	if strings.Join(h.repo.calls, ",") != strings.Join(wantCalls, ",") {
		t.Errorf("expected git calls %v, got %v", wantCalls, h.repo.calls)
	}
	if len(h.snapshots.saved) != 1 || h.snapshots.saved[0] != newSpec {
		t.Error("expected the new snapshot to be saved after deployment")
	}
	if h.snapshots.changes != 1 {
		t.Errorf("expected the change set to be logged once, got %d", h.snapshots.changes)
	}
	if h.gen.cleanups != 1 {
		t.Errorf("expected generator cleanup, got %d", h.gen.cleanups)
	}
	if ok, _ := afero.DirExists(h.fs, "/tmp"); ok {
		entries, _ := afero.ReadDir(h.fs, "/tmp")
		if len(entries) != 0 {
			t.Errorf("expected every backup to be released, found %d", len(entries))
		}
	}
	if res.Commit != "0123456789abcdef" {
		t.Errorf("unexpected commit %q", res.Commit)
	}
	if len(h.recorder.steps) != len(res.Log) || h.recorder.checks != 1 || h.recorder.changes != 1 {
		t.Errorf("expected the run to be mirrored to the recorder, got %d steps %d checks %d changes",
			len(h.recorder.steps), h.recorder.checks, h.recorder.changes)
	}
}

func TestRun_NoChangesSkips(t *testing.T) {
	h := newHarness(t)
	h.snapshots.current = newSpec

	res, err := h.pipeline().Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
	if rec, _ := res.Last(StageDetect); rec.Status != StatusSkip || rec.Message != "No API changes detected" {
		t.Errorf("unexpected DETECT record %+v", rec)
	}
	if h.repo.has("branch") || h.repo.has("commit") || h.repo.has("push") {
		t.Errorf("no git mutation expected, got %v", h.repo.calls)
	}
	if len(h.ci.waits) != 0 {
		t.Error("CI wait must not run without changes")
	}
	if h.gate.calls != 0 || len(h.snapshots.saved) != 0 || h.snapshots.changes != 0 {
		t.Error("nothing should be validated or saved")
	}
}

func TestRun_ValidateFailureRestoresTree(t *testing.T) {
	h := newHarness(t)
	before := treeHash(t, h.fs)
	h.gate.verdict = &checks.Verdict{Results: []checks.CheckResult{{Check: "syntax", Status: checks.StatusFail, Message: "chat.py:1:1: syntax error"}}}
	h.gate.err = h.gate.verdict.Err()

	res, _ := h.pipeline().Run(context.Background())
	if res.Status != ResultFailed || res.FailedStage != StageValidate {
		t.Fatalf("expected VALIDATE failure, got %s/%s", res.Status, res.FailedStage)
	}
	if !errors.Is(h.gate.err, checks.ErrValidationFailed) {
		t.Fatal("gate error should wrap ErrValidationFailed")
	}
	if after := treeHash(t, h.fs); after != before {
		t.Error("rollback did not restore a byte-identical tree")
	}
	if !res.RolledBack {
		t.Error("expected rolled_back=true")
	}
	if rec, _ := res.Last(StageRollback); rec.Status != StatusPass {
		t.Errorf("expected ROLLBACK PASS, got %+v", rec)
	}
	if h.repo.has("commit") || h.repo.has("push") {
		t.Errorf("nothing should be committed or pushed, got %v", h.repo.calls)
	}
	if !h.repo.has("checkout main") || !h.repo.has("delete auto-deploy") {
		t.Errorf("expected checkout of trunk and local branch deletion, got %v", h.repo.calls)
	}
	if len(h.snapshots.saved) != 0 {
		t.Error("snapshot must not be saved after a failed run")
	}
}

func TestRun_CIUnsafeRollsBack(t *testing.T) {
	h := newHarness(t)
	before := treeHash(t, h.fs)
	h.ci.wait = &ci.Status{Status: ci.StatusUnsafe, Message: "Low success rate: 0.0% (0/1)"}

	res, _ := h.pipeline().Run(context.Background())
	if res.FailedStage != StageCIWait {
		t.Fatalf("expected CI_WAIT failure, got %q: %s", res.FailedStage, steps(res))
	}
	if h.repo.has("merge") {
		t.Error("must not merge after CI failure")
	}
	if !h.repo.has("delete-remote auto-deploy") {
		t.Errorf("expected the pushed branch to be deleted remotely, got %v", h.repo.calls)
	}
	if treeHash(t, h.fs) != before {
		t.Error("rollback did not restore the tree")
	}
	if res.CI == nil || res.CI.Status != ci.StatusUnsafe {
		t.Errorf("expected CI status on result, got %+v", res.CI)
	}
}

func TestRun_CITimeoutRollsBack(t *testing.T) {
	h := newHarness(t)
	h.ci.wait = &ci.Status{Status: ci.StatusTimeout}
	h.ci.waitErr = ci.ErrTimeout
	res, _ := h.pipeline().Run(context.Background())
	if res.FailedStage != StageCIWait || !res.RolledBack {
		t.Errorf("expected CI_WAIT failure with rollback, got %q rolled_back=%v", res.FailedStage, res.RolledBack)
	}
}

func TestRun_MergeFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.repo.mergeErr = errors.New("merge conflict")
	res, _ := h.pipeline().Run(context.Background())
	if res.FailedStage != StageMerge || !res.RolledBack {
		t.Errorf("expected MERGE failure with rollback, got %q", res.FailedStage)
	}
	if len(h.snapshots.saved) != 0 {
		t.Error("snapshot must not be saved after a failed merge")
	}
}

func TestRun_Prereqs(t *testing.T) {
	tests := []struct {
		name       string
		trunk      string
		blockUnk   bool
		lookPath   vcs.LookPathFunc
		wantStatus string
	}{
		{"unsafe CI", ci.StatusUnsafe, false, nil, ResultFailed},
		{"unknown CI blocked", ci.StatusUnknown, true, nil, ResultFailed},
		{"unknown CI allowed", ci.StatusUnknown, false, nil, ResultSuccess},
		{"caution CI", ci.StatusCaution, true, nil, ResultSuccess},
		{"missing gh", ci.StatusSafe, true, func(name string) (string, error) {
			if name == "gh" {
				return "", errors.New("not found")
			}
			return name, nil
		}, ResultFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ci.trunk = &ci.Status{Status: tt.trunk}
			h.opts.BlockOnUnknownCI = tt.blockUnk
			if tt.lookPath != nil {
				h.opts.LookPath = tt.lookPath
			}
			res, _ := h.pipeline().Run(context.Background())
			if res.Status != tt.wantStatus {
				t.Fatalf("expected %s, got %s: %s", tt.wantStatus, res.Status, steps(res))
			}
			if tt.wantStatus == ResultFailed {
				if res.FailedStage != StagePrereqs {
					t.Errorf("expected PREREQS failure, got %q", res.FailedStage)
				}
				if res.RolledBack || h.repo.has("branch") {
					t.Error("PREREQS failure must not branch or roll back")
				}
			}
		})
	}
}

func TestRun_NotOnTrunkFails(t *testing.T) {
	h := newHarness(t)
	h.repo.current = "feature/x"
	res, _ := h.pipeline().Run(context.Background())
	if res.Status != ResultFailed || res.FailedStage != StagePrereqs {
		t.Fatalf("expected PREREQS failure, got %s at %q", res.Status, res.FailedStage)
	}
	if h.repo.has("branch") || h.repo.has("checkout") {
		t.Errorf("no branch or checkout expected, got %v", h.repo.calls)
	}
}

func TestRun_GateBackupReleaseErrorLogged(t *testing.T) {
	h := newHarness(t)
	h.gate.released = true
	core, logs := observer.New(zap.WarnLevel)
	p := h.pipeline()
	p.logger = zap.New(core)

	res, _ := p.Run(context.Background())
	if res.Status != ResultSuccess {
		t.Fatalf("release failure must not fail the run, got %s", res.Status)
	}
	entries := logs.FilterMessage("release gate backup").All()
	if len(entries) != 1 {
		t.Fatalf("expected one release warning, got %d", len(entries))
	}
	if err, _ := entries[0].ContextMap()["error"].(string); !strings.Contains(err, "already consumed") {
		t.Errorf("expected handle error in log, got %v", entries[0].ContextMap())
	}
}

func TestRun_DirtyTreeWarns(t *testing.T) {
	h := newHarness(t)
	h.repo.dirty = []string{" M README.md"}
	res, _ := h.pipeline().Run(context.Background())
	var warned bool
	for _, r := range res.Log {
		if r.Step == StagePrereqs && r.Status == StatusWarn {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a PREREQS warning for a dirty tree")
	}
	if res.Status != ResultSuccess {
		t.Errorf("dirty tree must not block, got %s", res.Status)
	}
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t)
	h.opts.DryRun = true
	before := treeHash(t, h.fs)

	res, _ := h.pipeline().Run(context.Background())
	if res.Status != ResultSuccess || !res.DryRun {
		t.Fatalf("expected successful dry run, got %s", res.Status)
	}
	want := "PREREQS=PASS DETECT=PASS BRANCH=SKIP GENERATE=SKIP VALIDATE=SKIP COMMIT=SKIP CI_WAIT=SKIP MERGE=SKIP CLEANUP=SKIP"
	if got := steps(res); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if res.ChangeSet == nil || res.ChangeSet.IsEmpty() {
		t.Error("dry run should still report the change set")
	}
	if len(h.snapshots.saved) != 0 || h.snapshots.changes != 0 || len(h.recorder.steps) != 0 {
		t.Error("dry run must not persist anything")
	}
	if treeHash(t, h.fs) != before {
		t.Error("dry run must not touch the tree")
	}
}

func TestRun_ForceRequiresConfirm(t *testing.T) {
	h := newHarness(t)
	h.opts.Force = true
	if _, err := h.pipeline().Run(context.Background()); !errors.Is(err, ErrForceNotInteractive) {
		t.Errorf("expected ErrForceNotInteractive, got %v", err)
	}
}

func TestRun_ForceConfirmed(t *testing.T) {
	h := newHarness(t)
	h.opts.Force = true
	var asked string
	h.opts.Confirm = func(ctx context.Context, q string) (bool, error) {
		asked = q
		return true, nil
	}
	res, _ := h.pipeline().Run(context.Background())
	if res.Status != ResultSuccess || !res.Forced {
		t.Fatalf("expected forced success, got %s", res.Status)
	}
	if h.gate.calls != 0 {
		t.Error("gate must not run when forced")
	}
	if !strings.Contains(asked, "Skip safety validation") {
		t.Errorf("unexpected question %q", asked)
	}
	if rec, _ := res.Last(StageValidate); rec.Status != StatusSkip {
		t.Errorf("expected VALIDATE SKIP, got %+v", rec)
	}
}

func TestRun_ForceDeclined(t *testing.T) {
	h := newHarness(t)
	h.opts.Force = true
	h.opts.Confirm = func(ctx context.Context, q string) (bool, error) { return false, nil }
	before := treeHash(t, h.fs)
	res, _ := h.pipeline().Run(context.Background())
	if res.FailedStage != StageValidate || !res.RolledBack {
		t.Errorf("expected declined force to fail VALIDATE with rollback, got %q", res.FailedStage)
	}
	if treeHash(t, h.fs) != before {
		t.Error("tree not restored")
	}
}

func TestRun_NothingToCommit(t *testing.T) {
	h := newHarness(t)
	h.repo.commitErr = vcs.ErrNothingToCommit
	res, _ := h.pipeline().Run(context.Background())
	if res.Status != ResultSuccess {
		t.Fatalf("expected success, got %s: %s", res.Status, steps(res))
	}
	if len(h.ci.waits) != 0 || h.repo.has("push") || h.repo.has("merge") {
		t.Errorf("nothing to push or merge, got %v", h.repo.calls)
	}
	if len(h.snapshots.saved) != 1 {
		t.Error("snapshot should be saved when no code change was needed")
	}
	if !h.repo.has("delete auto-deploy") {
		t.Errorf("expected local branch deletion, got %v", h.repo.calls)
	}
}

func TestRun_FetchErrorFailsDetect(t *testing.T) {
	h := newHarness(t)
	h.source.err = &apispec.FetchError{URL: "https://example.invalid/swagger.yaml", StatusCode: 503}
	res, _ := h.pipeline().Run(context.Background())
	if res.FailedStage != StageDetect || res.RolledBack {
		t.Errorf("expected DETECT failure without rollback, got %q rolled_back=%v", res.FailedStage, res.RolledBack)
	}
}

func TestRun_SavesResultAndReport(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	p := h.pipeline()
	p.deps.Runs = NewRunStore(dir)

	res, _ := p.Run(context.Background())
	got, err := p.deps.Runs.Get(res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != ResultSuccess || got.Branch != res.Branch {
		t.Errorf("unexpected stored run %+v", got)
	}
	report, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"# Deployment Report", "**Status**: SUCCESS", "`POST /audio/speech`", "| syntax | PASS |"} {
		if !strings.Contains(string(report), want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRunStore_List(t *testing.T) {
	s := NewRunStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{ResultSuccess, ResultFailed, ResultSkipped} {
		res := &Result{RunID: "deploy-" + string(rune('a'+i)), Status: status, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Save(res); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	all, err := s.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.RunID)
	}
	if strings.Join(ids, ",") != "deploy-c,deploy-b,deploy-a" {
		t.Errorf("expected newest first, got %v", ids)
	}
	failed, _ := s.List(ResultFailed)
	if len(failed) != 1 || failed[0].RunID != "deploy-b" {
		t.Errorf("unexpected filtered list %+v", failed)
	}
	if err := s.Save(&Result{RunID: "../escape"}); err == nil {
		t.Error("expected invalid run id to be rejected")
	}
	if _, err := s.Get("missing"); err == nil {
		t.Error("expected not found")
	}
}

func TestRunStore_ListMissingDir(t *testing.T) {
	runs, err := NewRunStore(filepath.Join(t.TempDir(), "nope")).List("")
	if err != nil || runs != nil {
		t.Errorf("expected empty list, got %v / %v", runs, err)
	}
}

func TestCommitMessage(t *testing.T) {
	a, _ := apispec.Parse([]byte(oldSpec))
	b, _ := apispec.Parse([]byte(newSpec))
	cs := snapshot.Diff(a, b)
	msg := CommitMessage(cs, nil)
	for _, want := range []string{"Auto-update for API 1.0 -> 1.1", "New endpoints:\n- POST /audio/speech", "New parameters:\n- ChatRequest.seed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("commit message missing %q:\n%s", want, msg)
		}
	}
}

func TestStagesOrder(t *testing.T) {
	if len(Stages) != 9 || Stages[0] != StagePrereqs || Stages[8] != StageCleanup {
		t.Errorf("unexpected stage order %v", Stages)
	}
	sorted := append([]string(nil), Stages...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			t.Errorf("duplicate stage %s", sorted[i])
		}
	}
}
