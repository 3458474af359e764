package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/db"
	"github.com/bencmd88/venicegate/internal/pipeline"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

var historyCmd = &cobra.Command{
	Use:       "history [deploys|checks|changes]",
	Short:     "Show past deployments, check results or detected changes",
	ValidArgs: []string{"deploys", "checks", "changes"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		kind := "deploys"
		if len(args) == 1 {
			kind = args[0]
		}

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		audit, err := a.openAudit()
		if err != nil {
			return err
		}
		if audit != nil {
			defer audit.Close()
		}

		switch kind {
		case "checks":
			if audit == nil {
				return errors.New("check history needs the audit database; enable audit in the config")
			}
			return historyChecks(cmd, audit, limit, asJSON)
		case "changes":
			return historyChanges(cmd, a, audit, limit, asJSON)
		default:
			return historyDeploys(cmd, a, audit, limit, asJSON)
		}
	},
}

func historyDeploys(cmd *cobra.Command, a *app, audit *db.DB, limit int, asJSON bool) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if audit != nil {
		runs, err := audit.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No deployments recorded.")
			return nil
		}
		fmt.Fprintln(w, "RUN\tSTARTED\tLAST STEP\tSTATUS\tMESSAGE")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.StartedAt, r.LastStep, r.Status, shorten(r.Message, 60))
		}
		return w.Flush()
	}

	runs, err := a.runStore().List("")
	if err != nil {
		return err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	if asJSON {
		if runs == nil {
			runs = []pipeline.Result{}
		}
		return printJSON(cmd.OutOrStdout(), runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No deployments recorded.")
		return nil
	}
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tFAILED STAGE\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.StartedAt.UTC().Format(time.RFC3339), r.Status, r.FailedStage, r.Duration().Round(time.Second))
	}
	return w.Flush()
}

func historyChecks(cmd *cobra.Command, audit *db.DB, limit int, asJSON bool) error {
	rows, err := audit.RecentChecks(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No check results recorded.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCHECK\tSTATUS\tMS\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.RunID, r.CheckName, r.Status, r.DurationMs, shorten(r.Message, 60))
	}
	return w.Flush()
}

func historyChanges(cmd *cobra.Command, a *app, audit *db.DB, limit int, asJSON bool) error {
	var changes []snapshot.ChangeSet
	if audit != nil {
		rows, err := audit.Changes(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			cs, err := r.Decode()
			if err != nil {
				return err
			}
			changes = append(changes, *cs)
		}
	}
	// Changes seen by monitor are only in the change log.
	if len(changes) == 0 {
		logged, err := a.snapshots().Changes()
		if err != nil {
			return err
		}
		for i := len(logged) - 1; i >= 0; i-- {
			changes = append(changes, logged[i])
		}
	}
	if limit > 0 && len(changes) > limit {
		changes = changes[:limit]
	}

	if asJSON {
		if changes == nil {
			changes = []snapshot.ChangeSet{}
		}
		return printJSON(cmd.OutOrStdout(), changes)
	}
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes recorded.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTED\tFROM\tTO\tCHANGES\tSUMMARY")
	for _, cs := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			cs.Timestamp.UTC().Format(time.RFC3339), cs.OldVersion, cs.NewVersion, cs.Total(), shorten(cs.Summary, 60))
	}
	return w.Flush()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries")
	historyCmd.Flags().Bool("json", false, "output as JSON")
}
