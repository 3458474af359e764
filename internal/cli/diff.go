package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two specification files",
	Long: `Compare two OpenAPI documents (YAML or JSON). Without --schema the output
is the full change set plus a field-level report of every changed schema;
with --schema only that schema is compared.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPath, _ := cmd.Flags().GetString("old")
		newPath, _ := cmd.Flags().GetString("new")
		schema, _ := cmd.Flags().GetString("schema")
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		before, err := readSpec(oldPath)
		if err != nil {
			return err
		}
		after, err := readSpec(newPath)
		if err != nil {
			return err
		}

		if schema != "" {
			r := snapshot.SchemaDiff(before, after, schema)
			if asJSON {
				return printJSON(out, r)
			}
			printSchemaReport(out, r)
			if r.Kind == snapshot.SchemaMissing {
				return fmt.Errorf("schema %q not found in either document", schema)
			}
			return nil
		}

		cs := snapshot.Diff(before, after)
		reports := snapshot.ModifiedSchemaReports(before, after)
		if asJSON {
			return printJSON(out, struct {
				ChangeSet *snapshot.ChangeSet     `json:"change_set"`
				Schemas   []snapshot.SchemaReport `json:"schemas"`
			}{cs, reports})
		}

		if cs.IsEmpty() {
			fmt.Fprintln(out, "No differences")
			return nil
		}
		fmt.Fprintln(out, cs.Summary)
		printIDs(out, "+", "endpoint", cs.Endpoints.Added)
		printIDs(out, "-", "endpoint", cs.Endpoints.Removed)
		for _, r := range reports {
			fmt.Fprintln(out)
			printSchemaReport(out, r)
		}
		return nil
	},
}

func readSpec(path string) (*apispec.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := apispec.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func printIDs(w io.Writer, sign, kind string, ids []string) {
	for _, id := range ids {
		fmt.Fprintf(w, "  %s %s %s\n", sign, kind, id)
	}
}

func printSchemaReport(w io.Writer, r snapshot.SchemaReport) {
	fmt.Fprintf(w, "schema %s: %s\n", r.Name, r.Kind)
	for _, f := range r.FieldsAdded {
		fmt.Fprintf(w, "  + %s\n", f)
	}
	for _, f := range r.FieldsGone {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	for _, tc := range r.TypeChanges {
		fmt.Fprintf(w, "  ~ %s: %s → %s\n", tc.Parameter, tc.Old.Type, tc.New.Type)
	}
	for _, vc := range r.ValueChanges {
		switch vc.Op {
		case "add":
			fmt.Fprintf(w, "    %s added: %v\n", vc.Path, vc.New)
		case "remove":
			fmt.Fprintf(w, "    %s removed: %v\n", vc.Path, vc.Old)
		default:
			fmt.Fprintf(w, "    %s: %v → %v\n", vc.Path, vc.Old, vc.New)
		}
	}
}

func init() {
	diffCmd.Flags().String("old", "", "path to the older specification")
	diffCmd.Flags().String("new", "", "path to the newer specification")
	diffCmd.Flags().String("schema", "", "compare a single named schema")
	diffCmd.Flags().Bool("json", false, "output as JSON")
	diffCmd.MarkFlagRequired("old")
	diffCmd.MarkFlagRequired("new")
}
