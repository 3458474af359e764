package checks

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
	// byPrefix answers commands by longest matching prefix before falling back to results.
	byPrefix map[string]mockResult
}

type mockCall struct {
	Dir     string
	Command string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Block    bool // wait for the context to expire
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	r, ok := m.lookup(command)
	if !ok {
		return "", "", 0, nil
	}
	if r.Block {
		<-ctx.Done()
		return "", "", -1, ctx.Err()
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func (m *mockCmd) lookup(command string) (mockResult, bool) {
	best := ""
	for prefix := range m.byPrefix {
		if strings.HasPrefix(command, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return m.byPrefix[best], true
	}
	if m.callIdx >= len(m.results) {
		return mockResult{}, false
	}
	r := m.results[m.callIdx]
	m.callIdx++
	return r, true
}

func TestRunner_Run_HappyPath(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "all good", ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "tests",
		Command: "pytest tests/",
		Parser:  "generic",
		Timeout: 30 * time.Second,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected passed=true, got false")
	}
	if result.CheckName != "tests" {
		t.Errorf("expected check_name=tests, got %q", result.CheckName)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	if mock.calls[0].Dir != "/tmp/test" {
		t.Errorf("expected dir=/tmp/test, got %q", mock.calls[0].Dir)
	}
	if mock.calls[0].Command != "pytest tests/" {
		t.Errorf("expected command=pytest tests/, got %q", mock.calls[0].Command)
	}
}

func TestRunner_Run_FailedCheck(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "errors found", Stderr: "Traceback", ExitCode: 1},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{Name: "tests", Command: "pytest", Parser: "generic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit_code=1, got %d", result.ExitCode)
	}
	if findings, _ := result.Findings.(string); !strings.Contains(findings, "Traceback") {
		t.Errorf("expected findings to include stderr, got %v", result.Findings)
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Block: true}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "tests",
		Command: "pytest",
		Timeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timed_out=true")
	}
	if result.Passed {
		t.Error("timed out check must not pass")
	}
	if !strings.Contains(result.Summary, "timeout after") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestRunner_Run_ToolMissing(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stderr: "sh: 1: ruff: not found", ExitCode: 127}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{Name: "lint", Command: "ruff check ."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Unavailable {
		t.Error("expected unavailable=true")
	}
	if !strings.Contains(result.Summary, `"ruff"`) {
		t.Errorf("expected summary to name the tool, got %q", result.Summary)
	}
}

func TestRunner_Run_UnknownParserFallsToGeneric(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "output", ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "custom",
		Command: "custom-check",
		Parser:  "unknown-parser",
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected passed=true")
	}
	if result.Summary != "passed (exit code 0)" {
		t.Errorf("expected generic summary, got %q", result.Summary)
	}
}

func TestRunner_Run_CommandError(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Err: fmt.Errorf("fork/exec: resource temporarily unavailable")},
		},
	}
	runner := NewRunner(mock)

	_, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "lint",
		Command: "ruff check .",
		Parser:  "generic",
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestExecRunner_Run(t *testing.T) {
	r := &ExecRunner{}
	stdout, _, code, err := r.Run(context.Background(), t.TempDir(), "echo hello; exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if strings.TrimSpace(stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", stdout)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	r := &ExecRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, _, err := r.Run(ctx, t.TempDir(), "sleep 5")
	if err == nil {
		t.Fatal("expected error for timed out command")
	}
}
