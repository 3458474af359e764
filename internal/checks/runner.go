package checks

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// exitNotFound is the shell's exit status for an unknown command.
const exitNotFound = 127

// Result holds the structured output of one command-backed check.
type Result struct {
	CheckName   string `json:"check_name"`
	Passed      bool   `json:"passed"`
	Warned      bool   `json:"warned,omitempty"`
	TimedOut    bool   `json:"timed_out,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
	ExitCode    int    `json:"exit_code"`
	DurationMs  int    `json:"duration_ms"`
	Summary     string `json:"summary"`
	Findings    any    `json:"findings,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
}

// CheckConfig is what the runner needs to execute one command.
type CheckConfig struct {
	Name    string
	Command string
	Parser  string
	Timeout time.Duration
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes checks and parses their output.
type Runner struct {
	cmd     CommandRunner
	parsers map[string]Parser
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	r := &Runner{
		cmd:     cmd,
		parsers: make(map[string]Parser),
	}
	r.parsers["ruff"] = &RuffParser{}
	r.parsers["pytest"] = &PytestParser{}
	r.parsers["gotest"] = &GoTestParser{}
	r.parsers["contract"] = &ContractParser{}
	r.parsers["generic"] = &GenericParser{}
	return r
}

// Register adds or replaces a named parser.
func (r *Runner) Register(name string, p Parser) {
	r.parsers[name] = p
}

// Run executes a single check in dir. Timeouts and missing executables are
// reported on the Result; only failures to start the command at all are
// returned as errors.
func (r *Runner) Run(ctx context.Context, dir string, cfg CheckConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(ctx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{
				CheckName:  cfg.Name,
				TimedOut:   true,
				ExitCode:   -1,
				DurationMs: durationMs,
				Summary:    (&TimeoutError{Op: cfg.Name, After: timeout}).Error(),
				Stdout:     stdout,
				Stderr:     stderr,
			}, nil
		}
		return nil, fmt.Errorf("run check %q: %w", cfg.Name, err)
	}

	if exitCode == exitNotFound {
		tool := firstWord(cfg.Command)
		return &Result{
			CheckName:   cfg.Name,
			Unavailable: true,
			ExitCode:    exitCode,
			DurationMs:  durationMs,
			Summary:     (&ToolingUnavailableError{Tool: tool}).Error(),
			Stdout:      stdout,
			Stderr:      stderr,
		}, nil
	}

	parser, ok := r.parsers[cfg.Parser]
	if !ok {
		parser = r.parsers["generic"]
	}
	parsed := parser.Parse(stdout, stderr, exitCode)

	return &Result{
		CheckName:  cfg.Name,
		Passed:     parsed.Passed,
		Warned:     parsed.Warned,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Summary:    parsed.Summary,
		Findings:   parsed.Findings,
		Stdout:     stdout,
		Stderr:     stderr,
	}, nil
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
