package checks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
	StatusSkip Status = "SKIP"
)

// CheckResult is one entry of a Verdict.
type CheckResult struct {
	Check      string `json:"check"`
	Status     Status `json:"status"`
	Message    string `json:"message"`
	DurationMs int    `json:"duration_ms"`
	Details    any    `json:"details,omitempty"`
}

// Verdict is the ordered outcome of one validation run.
type Verdict struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	BackupPath string        `json:"backup_path,omitempty"`
	Results    []CheckResult `json:"results"`
}

func (v *Verdict) add(r CheckResult) {
	v.Results = append(v.Results, r)
}

// Passed reports whether no check failed. WARN and SKIP do not block.
func (v *Verdict) Passed() bool {
	for _, r := range v.Results {
		if r.Status == StatusFail {
			return false
		}
	}
	return true
}

// Failed returns the failing results in order.
func (v *Verdict) Failed() []CheckResult {
	var out []CheckResult
	for _, r := range v.Results {
		if r.Status == StatusFail {
			out = append(out, r)
		}
	}
	return out
}

// Result returns the first result for the named check.
func (v *Verdict) Result(check string) (CheckResult, bool) {
	for _, r := range v.Results {
		if r.Check == check {
			return r, true
		}
	}
	return CheckResult{}, false
}

// Counts returns the number of results per status.
func (v *Verdict) Counts() map[Status]int {
	counts := map[Status]int{StatusPass: 0, StatusFail: 0, StatusWarn: 0, StatusSkip: 0}
	for _, r := range v.Results {
		counts[r.Status]++
	}
	return counts
}

// Err returns nil for a passing verdict, otherwise an error wrapping
// ErrValidationFailed that names the failed checks.
func (v *Verdict) Err() error {
	failed := v.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, r := range failed {
		names[i] = r.Check
	}
	return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(names, ", "))
}

// JSON returns the verdict as indented JSON.
func (v *Verdict) JSON() (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
