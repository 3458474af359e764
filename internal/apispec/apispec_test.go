package apispec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `
openapi: 3.0.0
info:
  title: Venice.ai API
  version: "20250101.1"
paths:
  /chat/completions:
    post:
      operationId: createChatCompletion
      summary: Chat completion
      responses:
        200:
          description: OK
  /models:
    parameters:
      - name: type
        in: query
    get:
      operationId: listModels
      responses:
        "200":
          description: OK
components:
  schemas:
    ChatCompletionRequest:
      type: object
      required: [model, messages]
      properties:
        model:
          type: string
          description: Model id
        messages:
          type: array
        temperature:
          type: number
        venice_parameters:
          $ref: '#/components/schemas/VeniceParameters'
    VeniceParameters:
      type: object
      properties:
        include_venice_system_prompt:
          type: boolean
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)

	assert.Equal(t, "20250101.1", doc.Version)
	assert.Equal(t, "Venice.ai API", doc.Title)
	assert.Equal(t, []string{"GET /models", "POST /chat/completions"}, doc.Endpoints())
	assert.Equal(t, []string{"ChatCompletionRequest", "VeniceParameters"}, doc.SchemaNames())

	op := doc.Paths["/chat/completions"]["post"]
	assert.Equal(t, "createChatCompletion", op.OperationID)

	fields := doc.Schemas["ChatCompletionRequest"].Fields
	assert.Equal(t, Field{Type: "string", Required: true, Description: "Model id"}, fields["model"])
	assert.Equal(t, Field{Type: "array", Required: true}, fields["messages"])
	assert.Equal(t, Field{Type: "number"}, fields["temperature"])
	assert.Equal(t, "#/components/schemas/VeniceParameters", fields["venice_parameters"].Type)
}

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(`{"info":{"version":"2"},"paths":{"/a":{"delete":{}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Version)
	assert.Equal(t, []string{"DELETE /a"}, doc.Endpoints())
	assert.Empty(t, doc.Schemas)
}

func TestParse_MissingFields(t *testing.T) {
	doc, err := Parse([]byte("openapi: 3.0.0\n"))
	require.NoError(t, err)
	assert.Equal(t, "unknown", doc.Version)
	assert.True(t, doc.IsEmpty())

	doc, err = Parse([]byte(`
components:
  schemas:
    Thing:
      properties:
        name: {}
`))
	require.NoError(t, err)
	assert.Equal(t, Field{Type: "unknown"}, doc.Schemas["Thing"].Fields["name"])
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("- just\n- a list\n"))
	assert.Error(t, err)
}

func TestContentHash_KeyOrderIndependent(t *testing.T) {
	a, err := ContentHash(map[string]any{"type": "object", "properties": map[string]any{"a": 1, "b": 2}})
	require.NoError(t, err)
	b, err := ContentHash(map[any]any{"properties": map[any]any{"b": 2, "a": 1}, "type": "object"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	c, err := ContentHash(map[string]any{"type": "string"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSchemaHash_StableAcrossReorderedYAML(t *testing.T) {
	one, err := Parse([]byte(`
components:
  schemas:
    S:
      type: object
      properties:
        a: {type: string}
        b: {type: integer}
`))
	require.NoError(t, err)
	two, err := Parse([]byte(`
components:
  schemas:
    S:
      properties:
        b: {type: integer}
        a: {type: string}
      type: object
`))
	require.NoError(t, err)
	assert.Equal(t, one.Schemas["S"].Hash, two.Schemas["S"].Hash)
}

func TestFieldHash(t *testing.T) {
	base := Field{Type: "string", Required: false, Description: "x"}
	assert.Equal(t, base.Hash(), Field{Type: "string", Description: "x"}.Hash())
	assert.NotEqual(t, base.Hash(), Field{Type: "string", Required: true, Description: "x"}.Hash())
	assert.NotEqual(t, base.Hash(), Field{Type: "integer", Description: "x"}.Hash())
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte(sampleSpec))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, 5*time.Second, nil, nil)
	doc, raw, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20250101.1", doc.Version)
	assert.Equal(t, sampleSpec, string(raw))
}

func TestFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, 5*time.Second, nil, nil)
	_, _, err := f.Fetch(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, srv.URL, fe.URL)
}

func TestFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := NewFetcher(url, time.Second, nil, nil).Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestLint(t *testing.T) {
	problems := Lint(context.Background(), []byte(`
openapi: 3.0.0
info:
  title: ok
  version: "1"
paths: {}
`))
	assert.Empty(t, problems)

	problems = Lint(context.Background(), []byte(`
openapi: 3.0.0
paths: {}
`))
	assert.NotEmpty(t, problems)
}
