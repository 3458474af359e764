package checks

import "fmt"

// GenericParser decides on exit code alone and keeps the tail of the output.
type GenericParser struct{}

// maxOutputLen caps how much stdout/stderr ends up in findings.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)"}
	}
	return ParseResult{
		Summary:  fmt.Sprintf("exit code %d", exitCode),
		Findings: tail(combine(stdout, stderr), maxOutputLen),
	}
}

func combine(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

// tail keeps the last n bytes; tracebacks and summaries are at the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…(truncated)\n" + s[len(s)-n:]
}
