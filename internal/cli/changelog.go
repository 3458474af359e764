package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/changelog"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Check the product changelog feed for API-relevant entries",
	Long: `Fetch the changelog feed, report entries not seen on the previous check and
flag those that mention API keywords. The bearer token, if any, is read from
` + changelog.TokenEnv + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		if a.cfg.Changelog.URL == "" {
			return errors.New("changelog.url is not configured")
		}

		r, err := a.changelogMonitor().Check(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(out, r)
		}
		fmt.Fprintf(out, "Total entries: %d\n", r.Total)
		fmt.Fprintf(out, "New entries: %d\n", r.New)
		fmt.Fprintf(out, "API-relevant new entries: %d\n", r.RelevantNew)
		for _, alert := range changelog.Alerts(r) {
			fmt.Fprintln(out)
			fmt.Fprint(out, alert)
		}
		return nil
	},
}

func init() {
	changelogCmd.Flags().Bool("json", false, "output as JSON")
}
