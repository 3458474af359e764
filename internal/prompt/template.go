package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

// FuncMap returns the template functions: all of sprig plus yaml and pyType.
func FuncMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["yaml"] = func(v any) (string, error) {
		b, err := yaml.Marshal(v)
		return strings.TrimRight(string(b), "\n"), err
	}
	fm["pyType"] = pyType
	return fm
}

// pyType maps a JSON schema type to a Python type hint.
func pyType(jsonType string) string {
	switch jsonType {
	case "string":
		return "str"
	case "integer":
		return "int"
	case "number":
		return "float"
	case "boolean":
		return "bool"
	case "array":
		return "List[Any]"
	case "object":
		return "Dict[str, Any]"
	}
	return "Any"
}

// Render executes a template with data. Missing map keys are errors.
func Render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// LoadTemplate returns the template named templatePath. A file at that path
// relative to overrideDir wins over the built-in template of the same name.
func LoadTemplate(templatePath string, overrideDir string) (string, error) {
	if overrideDir != "" {
		projectPath := filepath.Join(overrideDir, templatePath)
		// Prevent path traversal: resolved path must be within overrideDir
		absProject, err := filepath.Abs(projectPath)
		if err == nil {
			absDir, err2 := filepath.Abs(overrideDir)
			if err2 == nil && !strings.HasPrefix(absProject, absDir+string(filepath.Separator)) && absProject != absDir {
				return "", fmt.Errorf("template path %q escapes %s", templatePath, overrideDir)
			}
		}
		if data, err := os.ReadFile(projectPath); err == nil {
			return string(data), nil
		}
	}

	if content, ok := builtinTemplates[templatePath]; ok {
		return content, nil
	}
	return "", fmt.Errorf("template %q not found", templatePath)
}

// BuiltinNames lists the built-in template names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}
	return names
}
