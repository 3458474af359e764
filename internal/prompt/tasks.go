package prompt

import (
	"fmt"
	"strings"

	"github.com/bencmd88/venicegate/internal/apispec"
	"github.com/bencmd88/venicegate/internal/snapshot"
)

// Task is one discrete code-update job derived from a change set.
type Task struct {
	Title    string
	Template string
	Data     any
}

// Rendered is a task with its prompt text.
type Rendered struct {
	Title string
	Body  string
}

type parameterData struct {
	Schema     string
	Parameter  string
	Field      apispec.Field
	Definition any
}

type endpointData struct {
	Method    string
	Path      string
	Operation *apispec.Operation
}

type modifyData struct {
	Changes []snapshot.ParamChange
}

type removeData struct {
	Endpoints  []string
	Schemas    []string
	Parameters []snapshot.ParamChange
}

// BuildTasks splits a change set into tasks: one per new parameter, one per
// new endpoint, one for all modified parameters and one for all removals.
// spec supplies full definitions and may be nil.
func BuildTasks(cs *snapshot.ChangeSet, spec *apispec.Document) []Task {
	if cs.IsEmpty() {
		return nil
	}
	params := cs.ReportParameters()
	var tasks []Task

	for _, p := range params.Added {
		d := parameterData{Schema: p.Schema, Parameter: p.Parameter, Definition: definition(spec, p.Schema, p.Parameter)}
		if p.New != nil {
			d.Field = *p.New
		}
		tasks = append(tasks, Task{Title: "Add parameter " + p.Key(), Template: TemplateParameter, Data: d})
	}

	for _, id := range cs.Endpoints.Added {
		method, path, _ := strings.Cut(id, " ")
		d := endpointData{Method: method, Path: path}
		if spec != nil {
			if op, ok := spec.Paths[path][strings.ToLower(method)]; ok {
				d.Operation = &op
			}
		}
		tasks = append(tasks, Task{Title: "Implement endpoint " + id, Template: TemplateEndpoint, Data: d})
	}

	if len(params.Modified) > 0 {
		tasks = append(tasks, Task{
			Title:    fmt.Sprintf("Update %d modified parameters", len(params.Modified)),
			Template: TemplateModify,
			Data:     modifyData{Changes: params.Modified},
		})
	}

	if n := len(cs.Endpoints.Removed) + len(cs.Schemas.Removed) + len(params.Removed); n > 0 {
		tasks = append(tasks, Task{
			Title:    fmt.Sprintf("Deprecate %d removed items", n),
			Template: TemplateRemove,
			Data:     removeData{Endpoints: cs.Endpoints.Removed, Schemas: cs.Schemas.Removed, Parameters: params.Removed},
		})
	}
	return tasks
}

// RenderTasks renders every task, preferring templates found in overrideDir.
func RenderTasks(tasks []Task, overrideDir string) ([]Rendered, error) {
	out := make([]Rendered, 0, len(tasks))
	for _, t := range tasks {
		tmpl, err := LoadTemplate(t.Template, overrideDir)
		if err != nil {
			return nil, err
		}
		body, err := Render(t.Template, tmpl, t.Data)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", t.Title, err)
		}
		out = append(out, Rendered{Title: t.Title, Body: body})
	}
	return out, nil
}

func definition(spec *apispec.Document, schema, param string) any {
	if spec == nil {
		return nil
	}
	s, ok := spec.Schemas[schema]
	if !ok {
		return nil
	}
	props, _ := s.Raw["properties"].(map[string]any)
	def, ok := props[param]
	if !ok {
		return nil
	}
	return map[string]any{param: def}
}
