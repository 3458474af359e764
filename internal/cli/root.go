package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// ExitError carries a process exit code. A nil Err exits silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

var (
	configPath string
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "venicegate",
	Short: "venicegate — keeps a generated API client in sync with its upstream specification",
	Long: `venicegate watches the Venice.ai OpenAPI specification, classifies every
change by deployment risk and ships client updates through a guarded pipeline:
branch, generate, validate, commit, wait for CI, merge. Any failure after the
branch is created rolls the working tree back to its pre-change state.

Snapshots, change logs and deployment reports live in the repository's docs/
directory. Step and check history is mirrored to an audit database
(SQLite at ~/.venicegate/audit.db by default, or Postgres).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to venicegate.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a rotating file instead of stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(ciCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
