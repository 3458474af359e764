package checks

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidationFailed is wrapped by Verdict.Err when any check failed.
var ErrValidationFailed = errors.New("safety validation failed")

// ToolingUnavailableError means a required executable is not installed.
type ToolingUnavailableError struct {
	Tool string
}

func (e *ToolingUnavailableError) Error() string {
	return fmt.Sprintf("tool %q not found on PATH", e.Tool)
}

// TimeoutError means an operation exceeded its time budget.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %s", e.Op, e.After)
}
