package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/ci"
	"github.com/bencmd88/venicegate/internal/config"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Judge deployment safety from recent CI runs",
}

var ciStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Rate a branch by its recent CI success rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		branch, _ := cmd.Flags().GetString("branch")
		lookbackFlag, _ := cmd.Flags().GetString("lookback")
		asJSON, _ := cmd.Flags().GetBool("json")
		failureReport, _ := cmd.Flags().GetBool("failure-report")
		out := cmd.OutOrStdout()

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		if branch == "" {
			branch = a.cfg.Repository.Trunk
		}
		if lookbackFlag == "" {
			lookbackFlag = a.cfg.CI.Lookback
		}
		lookback, err := time.ParseDuration(lookbackFlag)
		if err != nil {
			return fmt.Errorf("invalid --lookback %q: %w", lookbackFlag, err)
		}

		st, err := a.oracle().SafetyStatus(cmd.Context(), branch, lookback)
		if err != nil {
			return err
		}

		if asJSON {
			if err := printJSON(out, st); err != nil {
				return err
			}
		} else {
			printCIStatus(out, branch, st)
			if failureReport {
				fmt.Fprintln(out)
				fmt.Fprint(out, ci.FailureReport(st.RecentFailures))
			}
		}

		if ci.Blocks(st.Status, a.cfg.Deploy.BlockOnUnknown()) {
			return &ExitError{Code: 1}
		}
		return nil
	},
}

var ciWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a branch's CI runs to finish, then rate it",
	RunE: func(cmd *cobra.Command, args []string) error {
		branch, _ := cmd.Flags().GetString("branch")
		timeoutFlag, _ := cmd.Flags().GetString("timeout")
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		if branch == "" {
			branch = a.cfg.Repository.Trunk
		}
		timeout := config.Duration(a.cfg.CI.Timeout, ci.DefaultWaitLimit)
		if timeoutFlag != "" {
			if timeout, err = time.ParseDuration(timeoutFlag); err != nil {
				return fmt.Errorf("invalid --timeout %q: %w", timeoutFlag, err)
			}
		}

		st, werr := a.oracle().WaitForCompletion(cmd.Context(), branch, timeout)
		if st != nil {
			if asJSON {
				if err := printJSON(out, st); err != nil {
					return err
				}
			} else {
				printCIStatus(out, branch, st)
			}
		}
		if werr != nil {
			return &ExitError{Code: 1, Err: werr}
		}
		if ci.Blocks(st.Status, a.cfg.Deploy.BlockOnUnknown()) {
			return &ExitError{Code: 1}
		}
		return nil
	},
}

func printCIStatus(w io.Writer, branch string, st *ci.Status) {
	tag := "PASS"
	switch st.Status {
	case ci.StatusCaution, ci.StatusUnknown:
		tag = "WARN"
	case ci.StatusUnsafe, ci.StatusTimeout:
		tag = "FAIL"
	}
	printStatus(w, tag, "ci "+branch, strings.ToUpper(st.Status)+": "+st.Message)
	for _, f := range st.RecentFailures {
		fmt.Fprintf(w, "  - %s #%d (%s) %s\n", f.Workflow, f.RunID, f.Type, f.URL)
	}
	if st.Recommendation != "" {
		printHint(w, st.Recommendation)
	}
}

func init() {
	ciStatusCmd.Flags().String("branch", "", "branch to rate (default: trunk)")
	ciStatusCmd.Flags().String("lookback", "", "only consider runs created within this window (default: ci.lookback)")
	ciStatusCmd.Flags().Bool("json", false, "output as JSON")
	ciStatusCmd.Flags().Bool("failure-report", false, "append a Markdown report of recent failures")

	ciWaitCmd.Flags().String("branch", "", "branch to wait for (default: trunk)")
	ciWaitCmd.Flags().String("timeout", "", "give up after this long (default: ci.timeout)")
	ciWaitCmd.Flags().Bool("json", false, "output as JSON")

	ciCmd.AddCommand(ciStatusCmd)
	ciCmd.AddCommand(ciWaitCmd)
}
