package generate

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/checks"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

type mockCmd struct {
	commands []string
	prompts  []string
	exitCode int
	block    bool
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.commands = append(m.commands, command)
	// The prompt path is the last quoted word.
	start := strings.LastIndex(command[:len(command)-1], "'")
	if data, err := os.ReadFile(command[start+1 : len(command)-1]); err == nil {
		m.prompts = append(m.prompts, string(data))
	}
	if m.block {
		<-ctx.Done()
		return "", "", -1, ctx.Err()
	}
	return "done\n", "agent stderr", m.exitCode, nil
}

func testChangeSet() *snapshot.ChangeSet {
	return &snapshot.ChangeSet{
		Endpoints: snapshot.IDDelta{Added: []string{"POST /audio/speech"}},
		Parameters: snapshot.ParamDelta{Added: []snapshot.ParamChange{
			{Schema: "ChatRequest", Parameter: "seed", New: &apispec.Field{Type: "integer"}},
		}},
	}
}

func TestNew(t *testing.T) {
	g, err := New(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.(Noop); !ok {
		t.Errorf("expected noop generator by default, got %T", g)
	}
	if _, err := New(Config{Kind: KindCommand}, nil, nil); err == nil {
		t.Error("expected error for command generator without a command")
	}
	if _, err := New(Config{Kind: "llm"}, nil, nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNoop(t *testing.T) {
	res, err := Noop{}.Generate(context.Background(), testChangeSet(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tasks != 2 {
		t.Errorf("expected 2 tasks, got %d", res.Tasks)
	}
}

func TestCommand_RunsOnePromptPerTask(t *testing.T) {
	mock := &mockCmd{}
	g := NewCommand(Config{Kind: KindCommand, Command: "agent --prompt-file {prompt_file}", Dir: "/repo", TempDir: t.TempDir()}, mock, nil)

	res, err := g.Generate(context.Background(), testChangeSet(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tasks != 2 || len(mock.commands) != 2 {
		t.Fatalf("expected 2 tasks and 2 commands, got %d/%d", res.Tasks, len(mock.commands))
	}
	if !strings.HasPrefix(mock.commands[0], "agent --prompt-file '") {
		t.Errorf("unexpected command %q", mock.commands[0])
	}
	if len(mock.prompts) != 2 || !strings.Contains(mock.prompts[0], "ChatRequest.seed") || !strings.Contains(mock.prompts[1], "POST /audio/speech") {
		t.Errorf("unexpected prompts: %v", mock.prompts)
	}
	if res.Output != "done\ndone\n" {
		t.Errorf("unexpected output %q", res.Output)
	}

	files := g.Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(files))
	}
	for _, f := range files {
		if !strings.Contains(f, "venicegate_prompt_") {
			t.Errorf("unexpected prompt file name %q", f)
		}
	}
	if err := g.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	for _, f := range files {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", f)
		}
	}
	if len(g.Files()) != 0 {
		t.Error("expected no tracked files after cleanup")
	}
}

func TestCommand_NonZeroExitStops(t *testing.T) {
	mock := &mockCmd{exitCode: 2}
	g := NewCommand(Config{Command: "agent {prompt_file}", TempDir: t.TempDir()}, mock, nil)
	defer g.Cleanup()

	_, err := g.Generate(context.Background(), testChangeSet(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exited 2") || !strings.Contains(err.Error(), "agent stderr") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(mock.commands) != 1 {
		t.Errorf("expected generation to stop after the first failure, got %d commands", len(mock.commands))
	}
	if len(g.Files()) != 1 {
		t.Error("failed task's prompt file must still be tracked for cleanup")
	}
}

func TestCommand_ToolMissing(t *testing.T) {
	g := NewCommand(Config{Command: "agent {prompt_file}", TempDir: t.TempDir()}, &mockCmd{exitCode: 127}, nil)
	defer g.Cleanup()
	_, err := g.Generate(context.Background(), testChangeSet(), nil)
	var unavailable *checks.ToolingUnavailableError
	if !errors.As(err, &unavailable) || unavailable.Tool != "agent" {
		t.Errorf("expected ToolingUnavailableError for agent, got %v", err)
	}
}

func TestCommand_Timeout(t *testing.T) {
	g := NewCommand(Config{Command: "agent {prompt_file}", TempDir: t.TempDir(), Timeout: 10 * time.Millisecond}, &mockCmd{block: true}, nil)
	defer g.Cleanup()
	_, err := g.Generate(context.Background(), testChangeSet(), nil)
	var timeout *checks.TimeoutError
	if !errors.As(err, &timeout) {
		t.Errorf("expected TimeoutError, got %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("/tmp/it's.md"); got != `'/tmp/it'\''s.md'` {
		t.Errorf("unexpected quoting %q", got)
	}
}
