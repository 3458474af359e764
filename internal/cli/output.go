package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var statusStyles = map[string]lipgloss.Style{
	"PASS":  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	"FAIL":  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"SKIP":  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	"START": lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
}

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// styled reports whether w is a terminal that should receive colour.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f.Fd())
}

// printStatus writes one tagged status line, e.g. "[PASS] lint".
func printStatus(w io.Writer, status, step, msg string) {
	tag := "[" + status + "]"
	if styled(w) {
		if s, ok := statusStyles[status]; ok {
			tag = s.Render(tag)
		}
	}
	if msg == "" {
		fmt.Fprintf(w, "%s %s\n", tag, step)
		return
	}
	fmt.Fprintf(w, "%s %s — %s\n", tag, step, msg)
}

// printHint writes a secondary line, dimmed on a terminal.
func printHint(w io.Writer, msg string) {
	if styled(w) {
		msg = dimStyle.Render(msg)
	}
	fmt.Fprintln(w, msg)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// interactive reports whether stdin is a terminal an operator can answer from.
var interactive = func() bool {
	return isTerminal(os.Stdin.Fd())
}

// confirm asks a yes/no question on the terminal. Aborting the form is a no.
func confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return ok, nil
}
