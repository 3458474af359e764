package cli

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/config"
	"github.com/bencmd88/venicegate/internal/pipeline"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Ship upstream specification changes through the guarded pipeline",
	Long: `Run the deployment pipeline:

  PREREQS → DETECT → BRANCH → GENERATE → VALIDATE → COMMIT → CI_WAIT → MERGE → CLEANUP

Any failure after BRANCH rolls back: the trunk is checked out, the code tree
restored from the pre-change backup and the deploy branch deleted. The
snapshot only advances when the run succeeds.

--force skips safety validation after an interactive confirmation.
--dry-run stops after detection and changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		a, err := loadApp(cmd, true)
		if err != nil {
			return err
		}

		gen, err := a.generator()
		if err != nil {
			return err
		}
		backups := a.backups()
		deps := pipeline.Deps{
			Source:    a.fetcher(),
			Snapshots: a.snapshots(),
			Gate:      a.gate(backups),
			CI:        a.oracle(),
			Repo:      a.repo(),
			Backups:   backups,
			Generator: gen,
			Runs:      a.runStore(),
		}
		if !dryRun {
			audit, err := a.openAudit()
			if err != nil {
				a.logger.Warn("audit database unavailable", zap.Error(err))
			} else if audit != nil {
				defer audit.Close()
				deps.Recorder = audit
			}
		}

		opts := pipeline.Options{
			DryRun:           dryRun,
			Force:            force,
			RequiredTools:    a.cfg.Deploy.RequiredTools,
			LookPath:         exec.LookPath,
			BlockOnUnknownCI: a.cfg.Deploy.BlockOnUnknown(),
			CILookback:       config.Duration(a.cfg.CI.Lookback, 0),
			CITimeout:        config.Duration(a.cfg.CI.Timeout, 0),
		}
		if interactive() {
			opts.Confirm = confirm
		}
		if !asJSON {
			opts.OnRecord = func(rec pipeline.Record) {
				if rec.Status == pipeline.StatusStart {
					return
				}
				printStatus(out, rec.Status, rec.Step, rec.Message)
			}
		}

		res, err := pipeline.New(deps, opts, a.logger).Run(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "\nDeployment %s: %s (%s)\n", res.RunID, res.Status, res.Duration().Round(time.Millisecond))
			if res.RolledBack {
				printHint(out, "Changes were rolled back")
			}
			if !dryRun {
				printHint(out, "Report: "+a.runStore().ReportPath())
			}
		}

		if res.Status == pipeline.ResultFailed {
			return &ExitError{Code: 1, Err: fmt.Errorf("deployment failed at %s: %s", res.FailedStage, res.Error)}
		}
		return nil
	},
}

func init() {
	deployCmd.Flags().Bool("dry-run", false, "detect and classify changes without touching the repository")
	deployCmd.Flags().Bool("force", false, "skip safety validation after confirmation")
	deployCmd.Flags().Bool("json", false, "output the run result as JSON")
}
