package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// pytestNoTests is pytest's exit status when nothing was collected.
const pytestNoTests = 5

// PytestParser parses plain pytest terminal output.
type PytestParser struct{}

var (
	pytestCount  = regexp.MustCompile(`(\d+) (passed|failed|skipped|errors?|xfailed|xpassed|deselected)`)
	pytestFailed = regexp.MustCompile(`(?m)^(FAILED|ERROR) (\S+)(?: - (.*))?$`)
)

type pytestFailure struct {
	Test  string `json:"test"`
	Error string `json:"error,omitempty"`
}

type pytestResult struct {
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Errors   int             `json:"errors"`
	Skipped  int             `json:"skipped"`
	Failures []pytestFailure `json:"failures,omitempty"`
}

func (p *PytestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var result pytestResult

	summary := lastSummaryLine(stdout)
	for _, m := range pytestCount.FindAllStringSubmatch(summary, -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "passed":
			result.Passed = n
		case "failed":
			result.Failed = n
		case "error", "errors":
			result.Errors = n
		case "skipped":
			result.Skipped = n
		}
	}
	for _, m := range pytestFailed.FindAllStringSubmatch(stdout, -1) {
		result.Failures = append(result.Failures, pytestFailure{Test: m[2], Error: m[3]})
	}

	text := fmt.Sprintf("%d passed, %d failed, %d errors, %d skipped", result.Passed, result.Failed, result.Errors, result.Skipped)

	switch {
	case exitCode == 0:
		return ParseResult{Passed: true, Summary: text, Findings: result}
	case exitCode == pytestNoTests:
		return ParseResult{Passed: true, Warned: true, Summary: "no tests collected", Findings: result}
	case summary == "":
		return ParseResult{
			Summary:  fmt.Sprintf("exit code %d (no pytest summary found)", exitCode),
			Findings: tail(combine(stdout, stderr), maxOutputLen),
		}
	default:
		return ParseResult{Summary: text, Findings: result}
	}
}

// lastSummaryLine finds pytest's final "=== N passed in Xs ===" line.
func lastSummaryLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if strings.HasPrefix(l, "=") && strings.HasSuffix(l, "=") && pytestCount.MatchString(l) {
			return l
		}
	}
	return ""
}
