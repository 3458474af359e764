package ci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrGHUnavailable is returned when the gh executable cannot be found.
var ErrGHUnavailable = errors.New("gh CLI not installed")

// CmdRunner runs gh commands. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs gh commands via exec in Dir.
type ExecRunner struct {
	Dir string
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrGHUnavailable
		}
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
