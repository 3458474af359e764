package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

func field(typ string, required bool, desc string) *apispec.Field {
	return &apispec.Field{Type: typ, Required: required, Description: desc}
}

func TestClassify_NewParameters(t *testing.T) {
	cs := &snapshot.ChangeSet{
		Parameters: snapshot.ParamDelta{
			Added: []snapshot.ParamChange{
				{Schema: "ChatRequest", Parameter: "seed", New: field("integer", false, "")},
				{Schema: "ImageRequest", Parameter: "style", New: field("string", true, "")},
			},
		},
	}
	c := Classify(cs)

	require.Len(t, c.Additive.Parameters, 2)
	assert.Equal(t, Safe, c.Additive.Parameters[0].Label)
	assert.Equal(t, "ChatRequest.seed", c.Additive.Parameters[0].ID)
	assert.Equal(t, Unsafe, c.Additive.Parameters[1].Label)
	assert.Equal(t, "ImageRequest.style", c.Additive.Parameters[1].ID)
	assert.Equal(t, Unsafe, c.Worst())
}

func TestClassify_Modified(t *testing.T) {
	tests := []struct {
		name     string
		old, new *apispec.Field
		want     Label
	}{
		{"type change", field("number", false, ""), field("integer", false, ""), Caution},
		{"description only", field("string", false, "a"), field("string", false, "b"), Safe},
		{"became required", field("string", false, ""), field("string", true, ""), Unsafe},
		{"became optional", field("string", true, ""), field("string", false, ""), Caution},
		{"type and required", field("string", false, ""), field("integer", true, ""), Caution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&snapshot.ChangeSet{Parameters: snapshot.ParamDelta{
				Modified: []snapshot.ParamChange{{Schema: "S", Parameter: "p", Old: tt.old, New: tt.new}},
			}})
			require.Len(t, c.Modifying.Parameters, 1)
			assert.Equal(t, tt.want, c.Modifying.Parameters[0].Label)
		})
	}
}

func TestClassify_EndpointsAndSchemas(t *testing.T) {
	cs := &snapshot.ChangeSet{
		Endpoints: snapshot.IDDelta{Added: []string{"POST /audio/speech"}, Removed: []string{"GET /legacy"}},
		Schemas:   snapshot.SchemaDelta{Added: []string{"New"}, Removed: []string{"Old"}, Modified: []string{"Changed"}},
		Parameters: snapshot.ParamDelta{
			Removed: []snapshot.ParamChange{{Schema: "Changed", Parameter: "x", Old: field("string", false, "")}},
		},
	}
	c := Classify(cs)

	assert.Equal(t, Safe, c.Additive.Endpoints[0].Label)
	assert.Equal(t, Unsafe, c.Removing.Endpoints[0].Label)
	assert.Equal(t, Safe, c.Additive.Schemas[0].Label)
	assert.Equal(t, Unsafe, c.Removing.Schemas[0].Label)
	assert.Equal(t, Caution, c.Modifying.Schemas[0].Label)
	assert.Equal(t, Caution, c.Removing.Parameters[0].Label)

	counts := c.Counts()
	assert.Equal(t, 2, counts[Safe])
	assert.Equal(t, 2, counts[Caution])
	assert.Equal(t, 2, counts[Unsafe])
	assert.Len(t, c.Filter(Unsafe), 2)
}

func TestClassify_NewSchemaPropertiesLabelledByRequired(t *testing.T) {
	cs := &snapshot.ChangeSet{
		Schemas: snapshot.SchemaDelta{Added: []string{"SpeechRequest"}, Removed: []string{"Legacy"}},
		Parameters: snapshot.ParamDelta{
			Added: []snapshot.ParamChange{
				{Schema: "SpeechRequest", Parameter: "input", New: field("string", true, "")},
				{Schema: "SpeechRequest", Parameter: "voice", New: field("string", false, "")},
			},
			Removed: []snapshot.ParamChange{{Schema: "Legacy", Parameter: "flag", Old: field("boolean", false, "")}},
		},
	}
	c := Classify(cs)
	require.Len(t, c.Additive.Parameters, 2)
	assert.Equal(t, Unsafe, c.Additive.Parameters[0].Label, "required property of a new schema")
	assert.Equal(t, Safe, c.Additive.Parameters[1].Label)
	assert.Equal(t, Caution, c.Removing.Parameters[0].Label, "removed property of a removed schema")
	assert.Equal(t, Unsafe, c.Worst())
}

func TestClassify_EveryChangeLabeledOnce(t *testing.T) {
	a, err := apispec.Parse([]byte(`
paths: {/a: {get: {}}}
components: {schemas: {S: {properties: {x: {type: string}}}}}
`))
	require.NoError(t, err)
	b, err := apispec.Parse([]byte(`
paths: {/b: {get: {}}}
components: {schemas: {S: {required: [y], properties: {y: {type: string}}}, T: {}}}
`))
	require.NoError(t, err)

	cs := snapshot.Diff(a, b)
	c := Classify(cs)
	assert.Len(t, c.Labels(), cs.Total())
	assert.Equal(t, Classify(cs), c)
}

func TestClassify_Empty(t *testing.T) {
	c := Classify(nil)
	assert.Empty(t, c.Labels())
	assert.Equal(t, Safe, c.Worst())
}
