package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/snapshot"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the safety checks against the working tree",
	Long: `Back up the code directory, then run every safety check in order: syntax,
imports, parameters, lint, tests, contract. The tree is never modified.

On failure the backup is kept and its path printed so the tree can be put
back with 'venicegate restore'. On success the backup is deleted unless
--keep-backup is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		keep, _ := cmd.Flags().GetBool("keep-backup")
		out := cmd.OutOrStdout()

		a, err := loadApp(cmd, true)
		if err != nil {
			return err
		}
		cs, err := changeSetFromFlags(cmd, a)
		if errors.Is(err, errNoChangeSet) {
			cs = &snapshot.ChangeSet{}
		} else if err != nil {
			return err
		}

		v, h, verr := a.gate(a.backups()).Validate(cmd.Context(), cs)

		if asJSON {
			if err := printJSON(out, v); err != nil {
				return err
			}
		} else {
			for _, r := range v.Results {
				fmt.Fprintf(out, "[%s] %s — %s (%dms)\n", r.Status, r.Check, r.Message, r.DurationMs)
			}
		}

		if verr != nil {
			if h != nil && !asJSON {
				printHint(out, fmt.Sprintf("Backup kept at %s\nRestore with: venicegate restore %s", h.Path, h.Path))
			}
			return &ExitError{Code: 1, Err: verr}
		}
		if keep {
			if !asJSON {
				printHint(out, "Backup kept at "+h.Path)
			}
			return nil
		}
		if err := h.Release(); err != nil {
			a.logger.Warn("release backup", zap.String("path", h.Path), zap.Error(err))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().String("changes-file", "", "validate against the change set in a JSON file")
	validateCmd.Flags().Bool("json", false, "output the verdict as JSON")
	validateCmd.Flags().Bool("keep-backup", false, "keep the backup even when every check passes")
}
