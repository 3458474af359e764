package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/classify"
	"github.com/bencmd88/venicegate/internal/fsutil"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

var errNoChangeSet = errors.New("no change set recorded; run `venicegate monitor` first or pass --changes-file")

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label each change of a change set SAFE, CAUTION or UNSAFE",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := loadApp(cmd, false)
		if err != nil {
			return err
		}
		cs, err := changeSetFromFlags(cmd, a)
		if err != nil {
			return err
		}
		c := classify.Classify(cs)

		if asJSON {
			return printJSON(cmd.OutOrStdout(), struct {
				ChangeSet      *snapshot.ChangeSet     `json:"change_set"`
				Classification classify.Classification `json:"classification"`
				Worst          classify.Label          `json:"worst"`
			}{cs, c, c.Worst()})
		}
		printClassification(cmd.OutOrStdout(), cs, &c)
		return nil
	},
}

// changeSetFromFlags reads --changes-file, or the latest logged change set
// when the flag is not given.
func changeSetFromFlags(cmd *cobra.Command, a *app) (*snapshot.ChangeSet, error) {
	file, _ := cmd.Flags().GetString("changes-file")
	if file != "" {
		var cs snapshot.ChangeSet
		if err := fsutil.ReadJSON(file, &cs); err != nil {
			return nil, fmt.Errorf("read change set: %w", err)
		}
		return &cs, nil
	}

	cs, err := a.snapshots().Latest()
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, errNoChangeSet
	}
	return cs, nil
}

func printClassification(w io.Writer, cs *snapshot.ChangeSet, c *classify.Classification) {
	fmt.Fprintf(w, "%s → %s: %s\n", versionOrNone(cs.OldVersion), versionOrNone(cs.NewVersion), cs.Summary)
	if c == nil {
		return
	}
	for _, l := range c.Labels() {
		printStatus(w, string(l.Label), string(l.Kind)+" "+l.ID, l.Reason)
	}
	counts := c.Counts()
	fmt.Fprintf(w, "\nSAFE: %d  CAUTION: %d  UNSAFE: %d  (worst: %s)\n",
		counts[classify.Safe], counts[classify.Caution], counts[classify.Unsafe], c.Worst())
}

func versionOrNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

func init() {
	classifyCmd.Flags().String("changes-file", "", "read the change set from a JSON file")
	classifyCmd.Flags().Bool("json", false, "output as JSON")
}
