package checks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultRuffErrorCodes are the rule prefixes treated as errors: syntax
// errors, invalid comparisons, misplaced statements and undefined names.
// Everything else ruff reports is a warning.
var DefaultRuffErrorCodes = []string{"E9", "F63", "F7", "F82"}

// RuffParser parses `ruff check --output-format=json` output.
type RuffParser struct {
	ErrorCodes []string
}

type ruffDiagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Level    string `json:"level"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	Fix *struct {
		Applicability string `json:"applicability"`
	} `json:"fix"`
}

type ruffFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type ruffResult struct {
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Fixable  int           `json:"fixable"`
	Findings []ruffFinding `json:"findings"`
}

func (p *RuffParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	out := strings.TrimSpace(stdout)
	if exitCode == 0 && out == "" {
		return ParseResult{Passed: true, Summary: "no linting issues"}
	}

	var diags []ruffDiagnostic
	if err := json.Unmarshal([]byte(out), &diags); err != nil {
		return ParseResult{
			Summary:  fmt.Sprintf("exit code %d (could not parse ruff JSON)", exitCode),
			Findings: tail(combine(stdout, stderr), maxOutputLen),
		}
	}

	codes := p.ErrorCodes
	if codes == nil {
		codes = DefaultRuffErrorCodes
	}

	var result ruffResult
	for _, d := range diags {
		sev := "warning"
		if d.Level == "error" || hasAnyPrefix(d.Code, codes) {
			sev = "error"
			result.Errors++
		} else {
			result.Warnings++
		}
		if d.Fix != nil {
			result.Fixable++
		}
		result.Findings = append(result.Findings, ruffFinding{
			File:     d.Filename,
			Line:     d.Location.Row,
			Column:   d.Location.Column,
			Severity: sev,
			Code:     d.Code,
			Message:  d.Message,
		})
	}

	summary := fmt.Sprintf("%d errors, %d warnings, %d fixable", result.Errors, result.Warnings, result.Fixable)
	return ParseResult{
		Passed:   result.Errors == 0,
		Warned:   result.Errors == 0 && result.Warnings > 0,
		Summary:  summary,
		Findings: result,
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
