package checks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// GoTestParser parses the event stream of `go test -json`.
type GoTestParser struct{}

type goTestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Output  string  `json:"Output"`
	Elapsed float64 `json:"Elapsed"`
}

type goTestFailure struct {
	Package string `json:"package"`
	Test    string `json:"test"`
	Output  string `json:"output,omitempty"`
}

type goTestResult struct {
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
	Failures []goTestFailure `json:"failures,omitempty"`
}

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var result goTestResult
	output := map[string]*strings.Builder{}
	events := 0
	pkgFailed := 0

	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev goTestEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events++
		key := ev.Package + "/" + ev.Test
		switch ev.Action {
		case "output":
			if ev.Test == "" {
				continue
			}
			b, ok := output[key]
			if !ok {
				b = &strings.Builder{}
				output[key] = b
			}
			b.WriteString(ev.Output)
		case "pass":
			if ev.Test != "" {
				result.Passed++
			}
		case "skip":
			if ev.Test != "" {
				result.Skipped++
			}
		case "fail":
			if ev.Test == "" {
				pkgFailed++
				continue
			}
			result.Failed++
			f := goTestFailure{Package: ev.Package, Test: ev.Test}
			if b, ok := output[key]; ok {
				f.Output = tail(b.String(), 2000)
			}
			result.Failures = append(result.Failures, f)
		}
	}

	if events == 0 {
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (could not parse go test JSON)", exitCode),
			Findings: tail(combine(stdout, stderr), maxOutputLen),
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d skipped", result.Passed, result.Failed, result.Skipped)
	if pkgFailed > 0 && result.Failed == 0 {
		summary += fmt.Sprintf(" (%d packages failed to build or run)", pkgFailed)
	}
	return ParseResult{
		Passed:   exitCode == 0 && result.Failed == 0 && pkgFailed == 0,
		Summary:  summary,
		Findings: result,
	}
}
