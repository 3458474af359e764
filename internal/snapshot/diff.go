package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bencmd88/venicegate/internal/apispec"
)

// IDDelta lists identifiers that appeared or disappeared between snapshots.
type IDDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// SchemaDelta adds content modifications to IDDelta.
type SchemaDelta struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// ParamChange describes one parameter (schema property) difference.
// Old is nil for additions and New is nil for removals.
type ParamChange struct {
	Schema    string         `json:"schema"`
	Parameter string         `json:"parameter"`
	Old       *apispec.Field `json:"old,omitempty"`
	New       *apispec.Field `json:"new,omitempty"`
}

// Key returns "Schema.parameter".
func (p ParamChange) Key() string {
	return p.Schema + "." + p.Parameter
}

// ParamDelta groups parameter changes.
type ParamDelta struct {
	Added    []ParamChange `json:"added"`
	Removed  []ParamChange `json:"removed"`
	Modified []ParamChange `json:"modified"`
}

// ChangeSet is the structural difference between two specification snapshots.
type ChangeSet struct {
	Timestamp  time.Time   `json:"timestamp"`
	OldVersion string      `json:"old_version"`
	NewVersion string      `json:"new_version"`
	Endpoints  IDDelta     `json:"endpoints"`
	Schemas    SchemaDelta `json:"schemas"`
	Parameters ParamDelta  `json:"parameters"`
	Summary    string      `json:"summary"`
}

// IsEmpty reports whether nothing changed in any category.
func (c *ChangeSet) IsEmpty() bool {
	return c == nil || c.Total() == 0
}

// Total is the number of individual changes across all categories.
func (c *ChangeSet) Total() int {
	if c == nil {
		return 0
	}
	return len(c.Endpoints.Added) + len(c.Endpoints.Removed) +
		len(c.Schemas.Added) + len(c.Schemas.Removed) + len(c.Schemas.Modified) +
		len(c.Parameters.Added) + len(c.Parameters.Removed) + len(c.Parameters.Modified)
}

// ReportParameters returns the parameter changes worth reporting: those that
// belong to schemas present in both snapshots. Properties of an added or
// removed schema are implied by the schema change itself.
func (c *ChangeSet) ReportParameters() ParamDelta {
	skip := map[string]bool{}
	for _, s := range c.Schemas.Added {
		skip[s] = true
	}
	for _, s := range c.Schemas.Removed {
		skip[s] = true
	}
	keep := func(in []ParamChange) []ParamChange {
		out := []ParamChange{}
		for _, p := range in {
			if !skip[p.Schema] {
				out = append(out, p)
			}
		}
		return out
	}
	return ParamDelta{
		Added:    keep(c.Parameters.Added),
		Removed:  keep(c.Parameters.Removed),
		Modified: keep(c.Parameters.Modified),
	}
}

// Diff computes the change set that transforms before into after. A nil document is
// treated as the empty document.
func Diff(before, after *apispec.Document) *ChangeSet {
	if before == nil {
		before = apispec.Empty()
	}
	if after == nil {
		after = apispec.Empty()
	}

	cs := &ChangeSet{
		Timestamp:  time.Now().UTC(),
		OldVersion: before.Version,
		NewVersion: after.Version,
	}

	cs.Endpoints.Added, cs.Endpoints.Removed = setDiff(before.Endpoints(), after.Endpoints())
	cs.Schemas.Added, cs.Schemas.Removed = setDiff(before.SchemaNames(), after.SchemaNames())
	cs.Schemas.Modified = []string{}

	for _, name := range after.SchemaNames() {
		prev, ok := before.Schemas[name]
		if !ok {
			continue
		}
		if prev.Hash != after.Schemas[name].Hash {
			cs.Schemas.Modified = append(cs.Schemas.Modified, name)
		}
	}

	cs.Parameters = diffParameters(before, after)
	cs.Summary = summarize(cs)
	return cs
}

func diffParameters(before, after *apispec.Document) ParamDelta {
	d := ParamDelta{Added: []ParamChange{}, Removed: []ParamChange{}, Modified: []ParamChange{}}

	names := union(before.SchemaNames(), after.SchemaNames())
	for _, schema := range names {
		oldFields := before.Schemas[schema].Fields
		newFields := after.Schemas[schema].Fields

		for _, p := range sortedKeys(newFields) {
			nf := newFields[p]
			of, existed := oldFields[p]
			switch {
			case !existed:
				d.Added = append(d.Added, ParamChange{Schema: schema, Parameter: p, New: &nf})
			case of.Hash() != nf.Hash():
				d.Modified = append(d.Modified, ParamChange{Schema: schema, Parameter: p, Old: &of, New: &nf})
			}
		}
		for _, p := range sortedKeys(oldFields) {
			if _, ok := newFields[p]; ok {
				continue
			}
			of := oldFields[p]
			d.Removed = append(d.Removed, ParamChange{Schema: schema, Parameter: p, Old: &of})
		}
	}
	return d
}

func summarize(cs *ChangeSet) string {
	if cs.IsEmpty() {
		return "No API changes detected"
	}
	params := cs.ReportParameters()
	parts := []string{}
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(len(cs.Endpoints.Added), "new endpoints")
	add(len(cs.Endpoints.Removed), "removed endpoints")
	add(len(cs.Schemas.Added), "new schemas")
	add(len(cs.Schemas.Removed), "removed schemas")
	add(len(cs.Schemas.Modified), "modified schemas")
	add(len(params.Added), "new parameters")
	add(len(params.Removed), "removed parameters")
	add(len(params.Modified), "modified parameters")
	if len(parts) == 0 {
		return "API changes detected"
	}
	return "API changes detected: " + strings.Join(parts, ", ")
}

// setDiff returns (b - a, a - b), both sorted.
func setDiff(a, b []string) (added, removed []string) {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	added, removed = []string{}, []string{}
	for _, s := range b {
		if !inA[s] {
			added = append(added, s)
		}
	}
	for _, s := range a {
		if !inB[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]apispec.Field) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
