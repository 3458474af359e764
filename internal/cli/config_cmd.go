package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bencmd88/venicegate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect venicegate configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Check the resolved configuration (file plus built-in defaults) and list
every problem grouped by section, e.g. repository, checks, ci.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		errs := config.Validate(cfg)
		if len(errs) == 0 {
			printStatus(out, "PASS", "config", configSource(cfg))
			return nil
		}

		printStatus(out, "FAIL", "config", fmt.Sprintf("%s: %d problem(s)", configSource(cfg), len(errs)))
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, section := range groupBySection(errs) {
			fmt.Fprintf(w, "%s:\n", section.name)
			for _, e := range section.errs {
				fmt.Fprintf(w, "  %s\t%s\n", e.Field, e.Message)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", configSource(cfg), data)
		return nil
	},
}

func configSource(cfg *config.Config) string {
	if cfg.Source == "" {
		return "built-in defaults"
	}
	return cfg.Source
}

type configSection struct {
	name string
	errs []config.ValidationError
}

// groupBySection buckets errors by the first element of their field path,
// keeping the validator's order within a section.
func groupBySection(errs []config.ValidationError) []configSection {
	idx := map[string]int{}
	var sections []configSection
	for _, e := range errs {
		name, _, _ := strings.Cut(e.Field, ".")
		name, _, _ = strings.Cut(name, "[")
		i, ok := idx[name]
		if !ok {
			i = len(sections)
			idx[name] = i
			sections = append(sections, configSection{name: name})
		}
		sections[i].errs = append(sections[i].errs, e)
	}
	sort.SliceStable(sections, func(a, b int) bool { return sections[a].name < sections[b].name })
	return sections
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
