package checks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContractParser parses the JSON report of the live API contract harness:
//
//	{"success": bool, "results": [{"test": "...", "status": "PASS|FAIL|SKIP", "message": "..."}]}
//
// Any output that is not such a report fails the check, as does a
// non-zero exit code.
type ContractParser struct{}

type contractCase struct {
	Test    string `json:"test"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type contractReport struct {
	Success *bool          `json:"success"`
	Results []contractCase `json:"results"`
}

type contractResult struct {
	Total    int            `json:"total"`
	Failed   int            `json:"failed"`
	Skipped  int            `json:"skipped"`
	Failures []contractCase `json:"failures,omitempty"`
}

func (p *ContractParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var report contractReport
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &report); err != nil || report.Success == nil {
		return ParseResult{
			Summary:  fmt.Sprintf("harness error: exit code %d, no contract report", exitCode),
			Findings: tail(combine(stdout, stderr), maxOutputLen),
		}
	}

	result := contractResult{Total: len(report.Results)}
	for _, c := range report.Results {
		switch strings.ToUpper(c.Status) {
		case "FAIL", "ERROR":
			result.Failed++
			result.Failures = append(result.Failures, c)
		case "SKIP":
			result.Skipped++
		}
	}

	switch {
	case result.Failed > 0 || !*report.Success:
		return ParseResult{
			Summary:  fmt.Sprintf("%d of %d contract tests failed", result.Failed, result.Total),
			Findings: result,
		}
	case exitCode != 0:
		return ParseResult{
			Summary:  fmt.Sprintf("harness error: exit code %d despite a passing report", exitCode),
			Findings: result,
		}
	default:
		return ParseResult{
			Passed:   true,
			Summary:  fmt.Sprintf("%d contract tests passed, %d skipped", result.Total-result.Skipped, result.Skipped),
			Findings: result,
		}
	}
}
