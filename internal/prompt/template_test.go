package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

func TestRender_SimpleFields(t *testing.T) {
	result, err := Render("t", "Hello {{.Name}}, schema {{.Schema | upper}}.", map[string]string{
		"Name":   "Alice",
		"Schema": "chat",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "Hello Alice, schema CHAT."
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestRender_MissingKey(t *testing.T) {
	_, err := Render("t", "Hello {{.name}}, issue {{.missing}}.", map[string]string{"name": "Alice"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should mention missing key, got: %v", err)
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("bad", "{{if .X}}unclosed", nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), `parse template "bad"`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRender_ValueContainsTemplateSyntax(t *testing.T) {
	result, err := Render("t", "Desc: {{.D}}", map[string]string{"D": "use {{.secret}} here"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Desc: use {{.secret}} here" {
		t.Errorf("values must not be re-expanded, got %q", result)
	}
}

func TestFuncMap_Helpers(t *testing.T) {
	result, err := Render("t", `{{pyType "integer"}} {{pyType "array"}} {{pyType "$ref"}}|{{yaml .}}`, map[string]any{"seed": map[string]any{"type": "integer"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "int List[Any] Any|seed:\n    type: integer"
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestLoadTemplate_Builtin(t *testing.T) {
	for _, name := range []string{TemplateParameter, TemplateEndpoint, TemplateModify, TemplateRemove} {
		content, err := LoadTemplate(name, "")
		if err != nil {
			t.Errorf("builtin %s: %v", name, err)
		}
		if content == "" {
			t.Errorf("builtin %s is empty", name)
		}
	}
	if n := len(BuiltinNames()); n != 4 {
		t.Errorf("expected 4 builtin templates, got %d", n)
	}
}

func TestLoadTemplate_ProjectOverride(t *testing.T) {
	dir := t.TempDir()
	custom := "# Custom {{.Schema}}"
	if err := os.WriteFile(filepath.Join(dir, TemplateParameter), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	content, err := LoadTemplate(TemplateParameter, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != custom {
		t.Errorf("expected override content, got %q", content)
	}
	// Other names still fall back to the builtins.
	if _, err := LoadTemplate(TemplateEndpoint, dir); err != nil {
		t.Errorf("expected builtin fallback: %v", err)
	}
}

func TestLoadTemplate_NotFound(t *testing.T) {
	if _, err := LoadTemplate("nope.md", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestLoadTemplate_PathTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTemplate("../../etc/passwd", dir)
	if err == nil {
		t.Fatal("expected error for path traversal")
	}
	if !strings.Contains(err.Error(), "escapes") {
		t.Errorf("expected 'escapes' error, got: %v", err)
	}
}

const taskSpec = `
info: {version: "2.0"}
paths:
  /audio/speech:
    post: {summary: Text to speech}
components:
  schemas:
    ChatRequest:
      required: [model]
      properties:
        model: {type: string}
        seed: {type: integer, description: Random seed, minimum: 0}
`

func TestBuildTasks(t *testing.T) {
	spec, err := apispec.Parse([]byte(taskSpec))
	if err != nil {
		t.Fatal(err)
	}
	cs := &snapshot.ChangeSet{
		Endpoints: snapshot.IDDelta{Added: []string{"POST /audio/speech"}, Removed: []string{"GET /legacy"}},
		Schemas:   snapshot.SchemaDelta{Added: []string{"SpeechRequest"}, Modified: []string{"ChatRequest"}},
		Parameters: snapshot.ParamDelta{
			Added: []snapshot.ParamChange{
				{Schema: "ChatRequest", Parameter: "seed", New: &apispec.Field{Type: "integer", Description: "Random seed"}},
				{Schema: "SpeechRequest", Parameter: "input", New: &apispec.Field{Type: "string", Required: true}},
			},
			Modified: []snapshot.ParamChange{
				{Schema: "ChatRequest", Parameter: "top_p", Old: &apispec.Field{Type: "number"}, New: &apispec.Field{Type: "string"}},
			},
		},
	}

	tasks := BuildTasks(cs, spec)
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks (param, endpoint, modify, remove), got %d", len(tasks))
	}
	if tasks[0].Title != "Add parameter ChatRequest.seed" {
		t.Errorf("unexpected first task %q", tasks[0].Title)
	}

	rendered, err := RenderTasks(tasks, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	param := rendered[0].Body
	for _, want := range []string{"# Add New Parameter: ChatRequest.seed", "- **Type**: integer", "seed: int = None", "minimum: 0"} {
		if !strings.Contains(param, want) {
			t.Errorf("parameter prompt missing %q:\n%s", want, param)
		}
	}
	if !strings.Contains(rendered[1].Body, "Summary: Text to speech") {
		t.Errorf("endpoint prompt missing summary:\n%s", rendered[1].Body)
	}
	if !strings.Contains(rendered[2].Body, "- **New Type**: string") {
		t.Errorf("modify prompt missing new type:\n%s", rendered[2].Body)
	}
	if !strings.Contains(rendered[3].Body, "- endpoint GET /legacy") {
		t.Errorf("remove prompt missing endpoint:\n%s", rendered[3].Body)
	}
}

func TestBuildTasks_Empty(t *testing.T) {
	if tasks := BuildTasks(&snapshot.ChangeSet{}, nil); tasks != nil {
		t.Errorf("expected no tasks, got %v", tasks)
	}
}
