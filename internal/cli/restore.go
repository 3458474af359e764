package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/backup"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Put the code tree back from a backup left by validate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := backup.Open(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}
		if err := h.Restore(); err != nil {
			return fmt.Errorf("restore %s: %w", args[0], err)
		}
		printStatus(cmd.OutOrStdout(), "PASS", "restore", fmt.Sprintf("%s restored from %s", h.Manifest.CodeDir, args[0]))
		return nil
	},
}
