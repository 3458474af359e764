// Package generate applies code updates for a change set. The pipeline treats
// a Generator as opaque: it may edit the code tree in any way, and the safety
// gate decides afterwards whether the result is deployable.
package generate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/prompt"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// Kinds accepted by New.
const (
	KindNoop    = "noop"
	KindCommand = "command"
)

// DefaultTimeout bounds one agent invocation.
const DefaultTimeout = 10 * time.Minute

// PromptPlaceholder is replaced with the quoted prompt file path in agent commands.
const PromptPlaceholder = "{prompt_file}"

// Result summarises one Generate call.
type Result struct {
	Tasks       int      `json:"tasks"`
	PromptFiles []string `json:"prompt_files,omitempty"`
	Output      string   `json:"output,omitempty"`
}

// Generator updates the code tree for a change set.
type Generator interface {
	Generate(ctx context.Context, cs *snapshot.ChangeSet, spec *apispec.Document) (*Result, error)
	// Cleanup removes transient artifacts left by earlier Generate calls.
	Cleanup() error
}

// Config selects and configures a generator.
type Config struct {
	Kind        string
	Command     string
	Dir         string
	Timeout     time.Duration
	TemplateDir string
	TempDir     string
}

// New builds the generator named by cfg.Kind.
func New(cfg Config, cmd checks.CommandRunner, logger *zap.Logger) (Generator, error) {
	switch cfg.Kind {
	case "", KindNoop:
		return Noop{}, nil
	case KindCommand:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, fmt.Errorf("generate: command generator needs a command")
		}
		return NewCommand(cfg, cmd, logger), nil
	}
	return nil, fmt.Errorf("generate: unknown kind %q", cfg.Kind)
}

// Noop leaves the tree untouched. Useful when code is updated out of band.
type Noop struct{}

func (Noop) Generate(ctx context.Context, cs *snapshot.ChangeSet, spec *apispec.Document) (*Result, error) {
	return &Result{Tasks: len(prompt.BuildTasks(cs, spec))}, nil
}

func (Noop) Cleanup() error { return nil }

// Command renders one prompt per task into a transient file and runs an
// agent command for each, in order.
type Command struct {
	cfg    Config
	cmd    checks.CommandRunner
	logger *zap.Logger
	files  []string
}

// NewCommand creates a command generator.
func NewCommand(cfg Config, cmd checks.CommandRunner, logger *zap.Logger) *Command {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{cfg: cfg, cmd: cmd, logger: logger}
}

func (g *Command) Generate(ctx context.Context, cs *snapshot.ChangeSet, spec *apispec.Document) (*Result, error) {
	rendered, err := prompt.RenderTasks(prompt.BuildTasks(cs, spec), g.cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("render prompts: %w", err)
	}
	res := &Result{Tasks: len(rendered)}
	var out strings.Builder
	for i, task := range rendered {
		path, err := g.writePrompt(task.Body)
		if err != nil {
			return res, err
		}
		res.PromptFiles = append(res.PromptFiles, path)

		command := strings.ReplaceAll(g.cfg.Command, PromptPlaceholder, shellQuote(path))
		g.logger.Info("running code generator",
			zap.Int("task", i+1),
			zap.Int("tasks", len(rendered)),
			zap.String("title", task.Title),
		)
		stdout, stderr, code, err := g.run(ctx, command)
		out.WriteString(stdout)
		if err != nil {
			return res, fmt.Errorf("task %q: %w", task.Title, err)
		}
		if code == 127 {
			return res, &checks.ToolingUnavailableError{Tool: firstWord(g.cfg.Command)}
		}
		if code != 0 {
			return res, fmt.Errorf("task %q: generator exited %d: %s", task.Title, code, strings.TrimSpace(stderr))
		}
	}
	res.Output = out.String()
	return res, nil
}

func (g *Command) run(ctx context.Context, command string) (string, string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	stdout, stderr, code, err := g.cmd.Run(runCtx, g.cfg.Dir, command)
	if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return stdout, stderr, code, &checks.TimeoutError{Op: "generate", After: g.cfg.Timeout}
	}
	return stdout, stderr, code, err
}

func (g *Command) writePrompt(body string) (string, error) {
	f, err := os.CreateTemp(g.cfg.TempDir, "venicegate_prompt_*.md")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	g.files = append(g.files, f.Name())
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close prompt file: %w", err)
	}
	return f.Name(), nil
}

// Files returns the transient prompt files not yet cleaned up.
func (g *Command) Files() []string {
	return append([]string(nil), g.files...)
}

// Cleanup removes every tracked prompt file. Missing files are ignored.
func (g *Command) Cleanup() error {
	var result *multierror.Error
	for _, f := range g.files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", f, err))
		}
	}
	g.files = nil
	return result.ErrorOrNil()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}
