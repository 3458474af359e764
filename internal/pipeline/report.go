package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/bencmd88/venicegate/internal/classify"
)

// Report renders a run as Markdown.
func Report(res *Result) string {
	var b strings.Builder
	b.WriteString("# Deployment Report\n\n")
	fmt.Fprintf(&b, "- **Run**: %s\n", res.RunID)
	fmt.Fprintf(&b, "- **Status**: %s\n", strings.ToUpper(res.Status))
	fmt.Fprintf(&b, "- **Started**: %s\n", res.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration**: %s\n", res.Duration().Round(time.Second))
	if res.DryRun {
		b.WriteString("- **Mode**: dry run\n")
	}
	if res.Forced {
		b.WriteString("- **Forced**: safety validation skipped\n")
	}
	if res.Branch != "" {
		fmt.Fprintf(&b, "- **Branch**: %s\n", res.Branch)
	}
	if res.Commit != "" {
		fmt.Fprintf(&b, "- **Commit**: %s\n", res.Commit)
	}
	if res.FailedStage != "" {
		fmt.Fprintf(&b, "- **Failed stage**: %s\n", res.FailedStage)
		fmt.Fprintf(&b, "- **Error**: %s\n", res.Error)
	}
	if res.RolledBack {
		b.WriteString("- **Rolled back**: yes\n")
	}

	if cs := res.ChangeSet; cs != nil {
		b.WriteString("\n## Changes\n\n")
		fmt.Fprintf(&b, "%s (%s -> %s)\n", cs.Summary, cs.OldVersion, cs.NewVersion)
		if c := res.Classification; c != nil {
			b.WriteString("\n| Kind | Change | Risk | Reason |\n|---|---|---|---|\n")
			for _, l := range c.Labels() {
				fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", l.Kind, l.ID, l.Label, l.Reason)
			}
			counts := c.Counts()
			fmt.Fprintf(&b, "\n%d safe, %d caution, %d unsafe\n", counts[classify.Safe], counts[classify.Caution], counts[classify.Unsafe])
		}
	}

	if v := res.Verdict; v != nil {
		b.WriteString("\n## Safety Checks\n\n| Check | Status | Message |\n|---|---|---|\n")
		for _, r := range v.Results {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Check, r.Status, escapeCell(r.Message))
		}
	}

	if st := res.CI; st != nil {
		b.WriteString("\n## CI\n\n")
		fmt.Fprintf(&b, "%s: %s\n\n%s\n", strings.ToUpper(st.Status), st.Message, st.Recommendation)
	}

	b.WriteString("\n## Log\n\n")
	for _, rec := range res.Log {
		fmt.Fprintf(&b, "- `%s` [%s] %s: %s\n", rec.Timestamp.Format("15:04:05"), rec.Status, rec.Step, rec.Message)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
