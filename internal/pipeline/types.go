package pipeline

import (
	"time"

	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/ci"
	"github.com/bencmd88/venicegate/internal/classify"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// Stage names, in execution order.
const (
	StagePrereqs  = "PREREQS"
	StageDetect   = "DETECT"
	StageBranch   = "BRANCH"
	StageGenerate = "GENERATE"
	StageValidate = "VALIDATE"
	StageCommit   = "COMMIT"
	StageCIWait   = "CI_WAIT"
	StageMerge    = "MERGE"
	StageCleanup  = "CLEANUP"
	StageRollback = "ROLLBACK"
)

// Stages lists the forward stages in order. ROLLBACK is not part of it.
var Stages = []string{
	StagePrereqs, StageDetect, StageBranch, StageGenerate, StageValidate,
	StageCommit, StageCIWait, StageMerge, StageCleanup,
}

// Record statuses.
const (
	StatusStart = "START"
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusWarn  = "WARN"
	StatusSkip  = "SKIP"
)

// Run outcomes.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Record is one entry of a run's log.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID          string                   `json:"run_id"`
	Status         string                   `json:"status"`
	DryRun         bool                     `json:"dry_run,omitempty"`
	Forced         bool                     `json:"forced,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	FailedStage    string                   `json:"failed_stage,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Branch         string                   `json:"branch,omitempty"`
	Commit         string                   `json:"commit,omitempty"`
	ChangeSet      *snapshot.ChangeSet      `json:"change_set,omitempty"`
	Classification *classify.Classification `json:"classification,omitempty"`
	Verdict        *checks.Verdict          `json:"verdict,omitempty"`
	CI             *ci.Status               `json:"ci,omitempty"`
	RolledBack     bool                     `json:"rolled_back,omitempty"`
	Log            []Record                 `json:"log"`
}

// Last returns the most recent record for step, if any.
func (r *Result) Last(step string) (Record, bool) {
	for i := len(r.Log) - 1; i >= 0; i-- {
		if r.Log[i].Step == step {
			return r.Log[i], true
		}
	}
	return Record{}, false
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
