package apispec

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verbs are the HTTP methods treated as endpoints. Other keys under a path
// item (parameters, summary, servers) are ignored.
var Verbs = []string{"get", "post", "put", "delete", "patch"}

// Operation is the metadata kept for a single path+verb pair.
type Operation struct {
	OperationID string `json:"operation_id,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
}

// Field describes one property of a component schema.
type Field struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Hash returns the content hash of the (type, required, description) tuple.
func (f Field) Hash() string {
	h, _ := ContentHash([]any{f.Type, f.Required, f.Description})
	return h
}

// Schema is a named component schema.
type Schema struct {
	Hash   string           `json:"hash"`
	Fields map[string]Field `json:"fields"`
	Raw    map[string]any   `json:"-"`
}

// Document is the structured form of an upstream API specification.
// A Document is never mutated after Parse returns it.
type Document struct {
	Version string                          `json:"version"`
	Title   string                          `json:"title,omitempty"`
	Paths   map[string]map[string]Operation `json:"paths"`
	Schemas map[string]Schema               `json:"schemas"`
}

// Empty returns the document used when no snapshot exists yet.
func Empty() *Document {
	return &Document{
		Version: "unknown",
		Paths:   map[string]map[string]Operation{},
		Schemas: map[string]Schema{},
	}
}

// IsEmpty reports whether the document has no endpoints and no schemas.
func (d *Document) IsEmpty() bool {
	return d == nil || (len(d.Paths) == 0 && len(d.Schemas) == 0)
}

// EndpointID formats the identifier of a path+verb pair, e.g. "POST /chat/completions".
func EndpointID(verb, path string) string {
	return strings.ToUpper(verb) + " " + path
}

// Endpoints returns every endpoint identifier in sorted order.
func (d *Document) Endpoints() []string {
	if d == nil {
		return nil
	}
	var out []string
	for path, ops := range d.Paths {
		for verb := range ops {
			out = append(out, EndpointID(verb, path))
		}
	}
	sort.Strings(out)
	return out
}

// SchemaNames returns the component schema names in sorted order.
func (d *Document) SchemaNames() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Schemas))
	for name := range d.Schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parse decodes a YAML or JSON specification.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}
	if raw == nil {
		return Empty(), nil
	}
	norm, ok := Canonicalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode spec: top level is not a mapping")
	}
	return fromRaw(norm)
}

func fromRaw(raw map[string]any) (*Document, error) {
	doc := Empty()

	if info, ok := raw["info"].(map[string]any); ok {
		if v := stringOf(info["version"]); v != "" {
			doc.Version = v
		}
		doc.Title = stringOf(info["title"])
	}

	if paths, ok := raw["paths"].(map[string]any); ok {
		for path, item := range paths {
			methods, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, verb := range Verbs {
				node, ok := methods[verb]
				if !ok {
					continue
				}
				op := Operation{}
				if m, ok := node.(map[string]any); ok {
					op.OperationID = stringOf(m["operationId"])
					op.Summary = stringOf(m["summary"])
					op.Deprecated, _ = m["deprecated"].(bool)
				}
				if doc.Paths[path] == nil {
					doc.Paths[path] = map[string]Operation{}
				}
				doc.Paths[path][verb] = op
			}
		}
	}

	components, _ := raw["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	for name, node := range schemas {
		m, _ := node.(map[string]any)
		s, err := buildSchema(m)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		doc.Schemas[name] = s
	}
	return doc, nil
}

func buildSchema(m map[string]any) (Schema, error) {
	if m == nil {
		m = map[string]any{}
	}
	hash, err := ContentHash(m)
	if err != nil {
		return Schema{}, err
	}

	required := map[string]bool{}
	if list, ok := m["required"].([]any); ok {
		for _, r := range list {
			required[stringOf(r)] = true
		}
	}

	fields := map[string]Field{}
	props, _ := m["properties"].(map[string]any)
	for name, p := range props {
		pm, _ := p.(map[string]any)
		f := Field{Type: "unknown", Required: required[name]}
		if t := stringOf(pm["type"]); t != "" {
			f.Type = t
		} else if ref := stringOf(pm["$ref"]); ref != "" {
			f.Type = ref
		}
		f.Description = stringOf(pm["description"])
		fields[name] = f
	}
	return Schema{Hash: hash, Fields: fields, Raw: m}, nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
