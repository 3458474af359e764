package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/changelog"
	"github.com/bencmd88/venicegate/internal/classify"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// monitorReport is the --json output of monitor.
type monitorReport struct {
	Changed        bool                     `json:"changed"`
	Accepted       bool                     `json:"accepted"`
	ChangeSet      *snapshot.ChangeSet      `json:"change_set"`
	Classification *classify.Classification `json:"classification,omitempty"`
	LintWarnings   []string                 `json:"lint_warnings,omitempty"`
	Changelog      *changelog.Report        `json:"changelog,omitempty"`
	ChangelogError string                   `json:"changelog_error,omitempty"`
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Fetch the upstream specification and report changes since the last snapshot",
	Long: `Fetch the upstream specification, diff it against the stored snapshot and
classify every change. Exits 0 when nothing changed, 2 when changes were
found and 1 on error. Detected changes are appended to the change log; the
snapshot itself only advances with --accept or after a successful deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")
		skipChangelog, _ := cmd.Flags().GetBool("skip-changelog")
		lintSpec, _ := cmd.Flags().GetBool("lint-spec")
		accept, _ := cmd.Flags().GetBool("accept")

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		doc, raw, err := a.fetcher().Fetch(ctx)
		if err != nil {
			return err
		}
		store := a.snapshots()
		prev, err := store.Load()
		if err != nil {
			return err
		}

		cs := snapshot.Diff(prev, doc)
		report := monitorReport{ChangeSet: cs, Changed: !cs.IsEmpty()}
		if report.Changed {
			c := classify.Classify(cs)
			report.Classification = &c
		}
		if lintSpec || a.cfg.Spec.Lint {
			report.LintWarnings = apispec.Lint(ctx, raw)
		}

		if report.Changed && !dryRun {
			if err := store.AppendChange(cs); err != nil {
				return err
			}
			if accept {
				if err := store.Save(raw); err != nil {
					return err
				}
				report.Accepted = true
			}
		}

		if !skipChangelog && a.cfg.Changelog.Enabled && a.cfg.Changelog.URL != "" {
			m := a.changelogMonitor()
			check := m.Check
			if dryRun {
				check = m.Preview
			}
			cr, err := check(ctx)
			if err != nil {
				a.logger.Warn("changelog check failed", zap.Error(err))
				report.ChangelogError = err.Error()
			} else {
				report.Changelog = cr
			}
		}

		a.logger.Info("monitor finished",
			zap.Bool("changed", report.Changed),
			zap.Int("changes", cs.Total()),
			zap.String("old_version", cs.OldVersion),
			zap.String("new_version", cs.NewVersion),
		)

		if asJSON {
			if err := printJSON(out, report); err != nil {
				return err
			}
		} else {
			printMonitor(cmd, report, dryRun)
		}

		if report.Changed {
			return &ExitError{Code: 2}
		}
		return nil
	},
}

func printMonitor(cmd *cobra.Command, r monitorReport, dryRun bool) {
	out := cmd.OutOrStdout()
	for _, w := range r.LintWarnings {
		printStatus(out, "WARN", "lint", w)
	}
	if !r.Changed {
		fmt.Fprintln(out, "No API changes detected")
	} else {
		printClassification(out, r.ChangeSet, r.Classification)
		switch {
		case dryRun:
			printHint(out, "Dry run: change log and snapshot left untouched")
		case r.Accepted:
			printHint(out, "Snapshot updated")
		default:
			printHint(out, "Run `venicegate deploy` to ship these changes, or re-run with --accept to record them as deployed")
		}
	}
	if r.ChangelogError != "" {
		printStatus(out, "WARN", "changelog", r.ChangelogError)
	}
	if r.Changelog != nil {
		printStatus(out, "PASS", "changelog", fmt.Sprintf("%d new entries, %d API relevant", r.Changelog.New, r.Changelog.RelevantNew))
		for _, e := range r.Changelog.RelevantEntries {
			fmt.Fprintf(out, "  - %s (%s)\n", e.Title, e.Date)
		}
	}
}

func init() {
	monitorCmd.Flags().Bool("dry-run", false, "report changes without writing the change log, snapshot or changelog cache")
	monitorCmd.Flags().Bool("json", false, "output as JSON")
	monitorCmd.Flags().Bool("skip-changelog", false, "do not check the changelog feed")
	monitorCmd.Flags().Bool("lint-spec", false, "validate the fetched document as OpenAPI 3 and report problems")
	monitorCmd.Flags().Bool("accept", false, "advance the snapshot to the fetched specification")
}
