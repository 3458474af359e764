// Package ci judges deployment safety from the CI host's recent workflow
// history, as reported by the gh CLI.
package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Safety levels reported by the oracle.
const (
	StatusSafe    = "safe"
	StatusCaution = "caution"
	StatusUnsafe  = "unsafe"
	StatusUnknown = "unknown"
	StatusTimeout = "timeout"
)

const (
	safeThreshold    = 0.8
	cautionThreshold = 0.5

	historyLimit   = 50
	pollLimit      = 20
	maxAnalyzed    = 3
	maxActionItems = 10
	runFields      = "status,conclusion,workflowName,createdAt,headBranch,url,databaseId"
)

// Defaults for callers that do not configure the oracle.
const (
	DefaultPoll      = 30 * time.Second
	DefaultLookback  = 24 * time.Hour
	DefaultWaitLimit = 15 * time.Minute
)

// ErrTimeout is returned by WaitForCompletion when runs are still pending at the deadline.
var ErrTimeout = errors.New("ci runs did not complete in time")

// Run is one workflow run as listed by gh.
type Run struct {
	DatabaseID   int64     `json:"databaseId"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	WorkflowName string    `json:"workflowName"`
	CreatedAt    time.Time `json:"createdAt"`
	HeadBranch   string    `json:"headBranch"`
	URL          string    `json:"url"`
}

// Pending reports whether the run has not finished yet.
func (r Run) Pending() bool {
	switch r.Status {
	case "in_progress", "queued", "pending", "waiting", "requested":
		return true
	}
	return false
}

// Failure is the analysis of one failed run.
type Failure struct {
	RunID       int64     `json:"run_id"`
	Workflow    string    `json:"workflow"`
	Branch      string    `json:"branch"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url"`
	Type        string    `json:"failure_type"`
	ActionItems []string  `json:"actionable_items"`
}

// Status is the oracle's verdict for a branch.
type Status struct {
	Status         string    `json:"safety_status"`
	Message        string    `json:"safety_message"`
	SuccessRate    float64   `json:"success_rate"`
	Total          int       `json:"total_runs"`
	Successes      int       `json:"success_count"`
	Failures       int       `json:"failure_count"`
	RecentFailures []Failure `json:"recent_failures"`
	Recommendation string    `json:"recommendation"`
}

// Blocks reports whether a status should stop a deployment.
// Unknown blocks only when blockOnUnknown is set.
func Blocks(status string, blockOnUnknown bool) bool {
	switch status {
	case StatusSafe, StatusCaution:
		return false
	case StatusUnknown:
		return blockOnUnknown
	}
	return true
}

// Oracle reads workflow history through gh.
type Oracle struct {
	cmd    CmdRunner
	logger *zap.Logger
	poll   time.Duration
	now    func() time.Time
}

// NewOracle creates an oracle. A nil logger is replaced with a no-op one.
func NewOracle(cmd CmdRunner, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{cmd: cmd, logger: logger, poll: DefaultPoll, now: time.Now}
}

// SetPollInterval overrides the WaitForCompletion poll interval.
func (o *Oracle) SetPollInterval(d time.Duration) {
	if d > 0 {
		o.poll = d
	}
}

// SetClock overrides the time source used for lookback filtering.
func (o *Oracle) SetClock(now func() time.Time) {
	o.now = now
}

// Runs lists the most recent workflow runs.
func (o *Oracle) Runs(ctx context.Context, limit int) ([]Run, error) {
	out, err := o.cmd.Run(ctx, "run", "list", "--json", runFields, "--limit", strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	var runs []Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, fmt.Errorf("parse run list JSON: %w", err)
	}
	return runs, nil
}

// SafetyStatus rates the branch by the success rate of its runs created
// within lookback. A zero lookback considers every listed run.
func (o *Oracle) SafetyStatus(ctx context.Context, branch string, lookback time.Duration) (*Status, error) {
	runs, err := o.Runs(ctx, historyLimit)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if lookback > 0 {
		cutoff = o.now().Add(-lookback)
	}
	var recent, failed []Run
	st := &Status{}
	for _, r := range runs {
		if r.HeadBranch != branch || r.CreatedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, r)
		switch r.Conclusion {
		case "success":
			st.Successes++
		case "failure":
			st.Failures++
			failed = append(failed, r)
		}
	}
	st.Total = len(recent)
	if st.Total > 0 {
		st.SuccessRate = float64(st.Successes) / float64(st.Total)
	}

	ratio := fmt.Sprintf("%.1f%% (%d/%d)", st.SuccessRate*100, st.Successes, st.Total)
	switch {
	case st.Total == 0:
		st.Status = StatusUnknown
		st.Message = "No recent CI runs found"
	case st.SuccessRate >= safeThreshold:
		st.Status = StatusSafe
		st.Message = "High success rate: " + ratio
	case st.SuccessRate >= cautionThreshold:
		st.Status = StatusCaution
		st.Message = "Moderate success rate: " + ratio
	default:
		st.Status = StatusUnsafe
		st.Message = "Low success rate: " + ratio
	}

	if len(failed) > maxAnalyzed {
		failed = failed[:maxAnalyzed]
	}
	for _, r := range failed {
		st.RecentFailures = append(st.RecentFailures, o.analyze(ctx, r))
	}
	st.Recommendation = recommendation(st.Status, st.RecentFailures)
	return st, nil
}

// WaitForCompletion polls the branch's runs until none is pending, then
// returns its SafetyStatus. At least one run must have been observed before
// the branch counts as complete, so a freshly pushed branch is not judged
// before its workflows are queued.
func (o *Oracle) WaitForCompletion(ctx context.Context, branch string, timeout time.Duration) (*Status, error) {
	if timeout <= 0 {
		timeout = DefaultWaitLimit
	}
	start := o.now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	bo := backoff.NewConstantBackOff(o.poll)
	pending := 0
	for {
		runs, err := o.Runs(ctx, pollLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("polling CI runs failed", zap.String("branch", branch), zap.Error(err))
		} else {
			seen := 0
			pending = 0
			for _, r := range runs {
				if r.HeadBranch != branch {
					continue
				}
				seen++
				if r.Pending() {
					pending++
				}
			}
			if seen > 0 && pending == 0 {
				o.logger.Info("CI runs completed", zap.String("branch", branch), zap.Int("runs", seen))
				return o.SafetyStatus(ctx, branch, 0)
			}
			o.logger.Info("waiting for CI runs",
				zap.String("branch", branch),
				zap.Int("pending", pending),
				zap.Duration("elapsed", o.now().Sub(start)),
			)
		}

		select {
		case <-time.After(bo.NextBackOff()):
		case <-deadline.C:
			return &Status{
				Status:         StatusTimeout,
				Message:        fmt.Sprintf("%d workflows still running after %s", pending, timeout),
				Recommendation: "Do not deploy - workflows did not complete in time",
			}, fmt.Errorf("wait for %s: %w", branch, ErrTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *Oracle) analyze(ctx context.Context, r Run) Failure {
	f := Failure{
		RunID:     r.DatabaseID,
		Workflow:  r.WorkflowName,
		Branch:    r.HeadBranch,
		CreatedAt: r.CreatedAt,
		URL:       r.URL,
		Type:      "unknown",
	}
	if f.RunID == 0 {
		f.RunID = runIDFromURL(r.URL)
	}
	if f.RunID == 0 {
		return f
	}
	logs, err := o.cmd.Run(ctx, "run", "view", strconv.FormatInt(f.RunID, 10), "--log-failed")
	if err != nil {
		o.logger.Debug("fetching failed run logs", zap.Int64("run_id", f.RunID), zap.Error(err))
		return f
	}
	f.Type = ClassifyFailure(logs)
	f.ActionItems = ActionItems(logs)
	return f
}

func runIDFromURL(url string) int64 {
	i := strings.LastIndex(url, "/")
	id, err := strconv.ParseInt(url[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ClassifyFailure buckets a failed run by keywords in its log.
func ClassifyFailure(logs string) string {
	l := strings.ToLower(logs)
	has := strings.Contains
	switch {
	case has(l, "test") && (has(l, "failed") || has(l, "error")):
		return "test_failure"
	case has(l, "lint") || has(l, "ruff"):
		return "linting_failure"
	case has(l, "syntax") && has(l, "error"):
		return "syntax_error"
	case has(l, "import") && (has(l, "error") || has(l, "failed")):
		return "import_error"
	case has(l, "timeout"):
		return "timeout"
	case has(l, "permission") || has(l, "denied"):
		return "permission_error"
	case has(l, "network") || has(l, "connection"):
		return "network_error"
	}
	return "unknown"
}

// ActionItems extracts up to ten lines worth acting on from a failed log.
func ActionItems(logs string) []string {
	var items []string
	for _, line := range strings.Split(logs, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "FAILED") && strings.Contains(line, "::"):
			items = append(items, "Fix failing test: "+line)
		case strings.Contains(line, "SyntaxError:"):
			items = append(items, "Fix syntax error: "+line)
		case strings.Contains(line, "ImportError:") || strings.Contains(line, "ModuleNotFoundError:"):
			items = append(items, "Fix import issue: "+line)
		case containsAny(line, "error:", "E999", "F401", "F811"):
			items = append(items, "Fix linting issue: "+line)
		}
		if len(items) == maxActionItems {
			break
		}
	}
	return items
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func recommendation(status string, failures []Failure) string {
	switch status {
	case StatusSafe:
		return "Safe to deploy - CI is stable"
	case StatusCaution:
		return "Deploy with caution - monitor closely"
	case StatusUnsafe:
		seen := map[string]bool{}
		var types []string
		for _, f := range failures {
			if !seen[f.Type] {
				seen[f.Type] = true
				types = append(types, f.Type)
			}
		}
		sort.Strings(types)
		if len(types) == 0 {
			return "Do not deploy - fix failing workflows first"
		}
		return fmt.Sprintf("Do not deploy - fix %s issues first", strings.Join(types, ", "))
	}
	return "Unknown safety status - proceed manually"
}

// FailureReport renders failures as a Markdown report.
func FailureReport(failures []Failure) string {
	if len(failures) == 0 {
		return "No recent failures found\n"
	}
	var b strings.Builder
	b.WriteString("# CI Failure Report\n\n")
	for i, f := range failures {
		fmt.Fprintf(&b, "## Failure #%d: %s\n", i+1, f.Workflow)
		fmt.Fprintf(&b, "**Run ID**: %d\n", f.RunID)
		fmt.Fprintf(&b, "**Branch**: %s\n", f.Branch)
		fmt.Fprintf(&b, "**Time**: %s\n", f.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "**Type**: %s\n\n", f.Type)
		if len(f.ActionItems) > 0 {
			b.WriteString("**Action Items**:\n\n")
			for _, item := range f.ActionItems {
				fmt.Fprintf(&b, "- %s\n", item)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
