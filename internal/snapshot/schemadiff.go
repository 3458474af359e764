package snapshot

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/bencmd88/venicegate/internal/apispec"
)

// SchemaDiffKind says how a single schema differs between two documents.
type SchemaDiffKind string

const (
	SchemaAdded     SchemaDiffKind = "added"
	SchemaRemoved   SchemaDiffKind = "removed"
	SchemaModified  SchemaDiffKind = "modified"
	SchemaUnchanged SchemaDiffKind = "unchanged"
	SchemaMissing   SchemaDiffKind = "missing"
)

// ValueChange is one leaf difference inside a schema, addressed by a
// dotted path such as "properties.model.type".
type ValueChange struct {
	Path string `json:"path"`
	Op   string `json:"op"` // add, remove, change
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// SchemaReport is the field-level diff of one named schema.
type SchemaReport struct {
	Name         string         `json:"name"`
	Kind         SchemaDiffKind `json:"kind"`
	FieldsAdded  []string       `json:"fields_added,omitempty"`
	FieldsGone   []string       `json:"fields_removed,omitempty"`
	TypeChanges  []ParamChange  `json:"type_changes,omitempty"`
	ValueChanges []ValueChange  `json:"value_changes,omitempty"`
}

// SchemaDiff compares the schema called name in before and after.
func SchemaDiff(before, after *apispec.Document, name string) SchemaReport {
	r := SchemaReport{Name: name}
	prev, hadPrev := before.Schemas[name]
	next, hasNext := after.Schemas[name]

	switch {
	case !hadPrev && !hasNext:
		r.Kind = SchemaMissing
		return r
	case !hadPrev:
		r.Kind = SchemaAdded
		r.FieldsAdded = fieldNames(next.Fields)
		return r
	case !hasNext:
		r.Kind = SchemaRemoved
		r.FieldsGone = fieldNames(prev.Fields)
		return r
	case prev.Hash == next.Hash:
		r.Kind = SchemaUnchanged
		return r
	}

	r.Kind = SchemaModified
	for _, f := range fieldNames(next.Fields) {
		of, ok := prev.Fields[f]
		if !ok {
			r.FieldsAdded = append(r.FieldsAdded, f)
			continue
		}
		nf := next.Fields[f]
		if of.Type != nf.Type {
			r.TypeChanges = append(r.TypeChanges, ParamChange{Schema: name, Parameter: f, Old: &of, New: &nf})
		}
	}
	for _, f := range fieldNames(prev.Fields) {
		if _, ok := next.Fields[f]; !ok {
			r.FieldsGone = append(r.FieldsGone, f)
		}
	}
	r.ValueChanges = deepDiff("", prev.Raw, next.Raw)
	return r
}

// ModifiedSchemaReports returns a report for every schema that changed.
func ModifiedSchemaReports(before, after *apispec.Document) []SchemaReport {
	var out []SchemaReport
	for _, name := range union(before.SchemaNames(), after.SchemaNames()) {
		r := SchemaDiff(before, after, name)
		if r.Kind != SchemaUnchanged {
			out = append(out, r)
		}
	}
	return out
}

func deepDiff(path string, a, b any) []ValueChange {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		keys := map[string]bool{}
		for k := range am {
			keys[k] = true
		}
		for k := range bm {
			keys[k] = true
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		var out []ValueChange
		for _, k := range sorted {
			p := join(path, k)
			av, inA := am[k]
			bv, inB := bm[k]
			switch {
			case !inA:
				out = append(out, ValueChange{Path: p, Op: "add", New: bv})
			case !inB:
				out = append(out, ValueChange{Path: p, Op: "remove", Old: av})
			default:
				out = append(out, deepDiff(p, av, bv)...)
			}
		}
		return out
	}
	if reflect.DeepEqual(a, b) {
		return nil
	}
	return []ValueChange{{Path: path, Op: "change", Old: a, New: b}}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", path, key)
}

func fieldNames(m map[string]apispec.Field) []string {
	return sortedKeys(m)
}
