// Package classify labels every entry of a change set with a deployment risk.
package classify

import (
	"fmt"

	"github.com/bencmd88/venicegate/internal/snapshot"
)

// Label is the risk attached to a single change.
type Label string

const (
	Safe    Label = "SAFE"
	Caution Label = "CAUTION"
	Unsafe  Label = "UNSAFE"
)

func (l Label) rank() int {
	switch l {
	case Unsafe:
		return 2
	case Caution:
		return 1
	default:
		return 0
	}
}

// Kind is the category of the changed item.
type Kind string

const (
	Endpoint  Kind = "endpoint"
	Schema    Kind = "schema"
	Parameter Kind = "parameter"
)

// Labeled is one classified change.
type Labeled struct {
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`
	Label  Label  `json:"label"`
	Reason string `json:"reason"`
}

// Bucket groups classified changes of one direction by kind.
type Bucket struct {
	Endpoints  []Labeled `json:"endpoints"`
	Schemas    []Labeled `json:"schemas"`
	Parameters []Labeled `json:"parameters"`
}

func (b Bucket) all() []Labeled {
	out := make([]Labeled, 0, len(b.Endpoints)+len(b.Schemas)+len(b.Parameters))
	out = append(out, b.Endpoints...)
	out = append(out, b.Schemas...)
	return append(out, b.Parameters...)
}

// Classification is the labeled form of a change set.
type Classification struct {
	Additive  Bucket `json:"additive"`
	Modifying Bucket `json:"modifying"`
	Removing  Bucket `json:"removing"`
}

// Classify labels every change in cs. It is total and deterministic: the
// same change set always yields the same labels in the same order.
func Classify(cs *snapshot.ChangeSet) Classification {
	c := Classification{
		Additive:  Bucket{Endpoints: []Labeled{}, Schemas: []Labeled{}, Parameters: []Labeled{}},
		Modifying: Bucket{Endpoints: []Labeled{}, Schemas: []Labeled{}, Parameters: []Labeled{}},
		Removing:  Bucket{Endpoints: []Labeled{}, Schemas: []Labeled{}, Parameters: []Labeled{}},
	}
	if cs == nil {
		return c
	}

	for _, id := range cs.Endpoints.Added {
		c.Additive.Endpoints = append(c.Additive.Endpoints, Labeled{Endpoint, id, Safe, "new endpoint"})
	}
	for _, id := range cs.Endpoints.Removed {
		c.Removing.Endpoints = append(c.Removing.Endpoints, Labeled{Endpoint, id, Unsafe, "endpoint removed; callers will break"})
	}

	for _, id := range cs.Schemas.Added {
		c.Additive.Schemas = append(c.Additive.Schemas, Labeled{Schema, id, Safe, "new schema"})
	}
	for _, id := range cs.Schemas.Modified {
		c.Modifying.Schemas = append(c.Modifying.Schemas, Labeled{Schema, id, Caution, "schema content changed"})
	}
	for _, id := range cs.Schemas.Removed {
		c.Removing.Schemas = append(c.Removing.Schemas, Labeled{Schema, id, Unsafe, "schema removed"})
	}

	// Parameters are labelled on their own even when their schema was added or
	// removed; grouping under the schema happens only in ChangeSet.ReportParameters.
	for _, p := range cs.Parameters.Added {
		c.Additive.Parameters = append(c.Additive.Parameters, addedParameter(p))
	}
	for _, p := range cs.Parameters.Modified {
		c.Modifying.Parameters = append(c.Modifying.Parameters, modifiedParameter(p))
	}
	for _, p := range cs.Parameters.Removed {
		c.Removing.Parameters = append(c.Removing.Parameters, Labeled{Parameter, p.Key(), Caution, "parameter removed"})
	}
	return c
}

func addedParameter(p snapshot.ParamChange) Labeled {
	if p.New != nil && p.New.Required {
		return Labeled{Parameter, p.Key(), Unsafe, "new required parameter"}
	}
	return Labeled{Parameter, p.Key(), Safe, "new optional parameter"}
}

func modifiedParameter(p snapshot.ParamChange) Labeled {
	l := Labeled{Kind: Parameter, ID: p.Key()}
	if p.Old == nil || p.New == nil {
		l.Label, l.Reason = Caution, "parameter changed"
		return l
	}
	old, cur := *p.Old, *p.New
	switch {
	case old.Type != cur.Type:
		l.Label, l.Reason = Caution, fmt.Sprintf("type changed from %s to %s", old.Type, cur.Type)
	case !old.Required && cur.Required:
		l.Label, l.Reason = Unsafe, "parameter became required"
	case old.Required != cur.Required:
		l.Label, l.Reason = Caution, "parameter became optional"
	case old.Description != cur.Description:
		l.Label, l.Reason = Safe, "description changed"
	default:
		l.Label, l.Reason = Caution, "parameter changed"
	}
	return l
}

// Labels returns every classified change: additive, then modifying, then removing.
func (c Classification) Labels() []Labeled {
	out := c.Additive.all()
	out = append(out, c.Modifying.all()...)
	return append(out, c.Removing.all()...)
}

// Filter returns the classified changes carrying label l.
func (c Classification) Filter(l Label) []Labeled {
	var out []Labeled
	for _, x := range c.Labels() {
		if x.Label == l {
			out = append(out, x)
		}
	}
	return out
}

// Worst returns the highest risk label present, SAFE when there are no changes.
func (c Classification) Worst() Label {
	worst := Safe
	for _, x := range c.Labels() {
		if x.Label.rank() > worst.rank() {
			worst = x.Label
		}
	}
	return worst
}

// Counts returns the number of changes per label.
func (c Classification) Counts() map[Label]int {
	counts := map[Label]int{Safe: 0, Caution: 0, Unsafe: 0}
	for _, x := range c.Labels() {
		counts[x.Label]++
	}
	return counts
}
