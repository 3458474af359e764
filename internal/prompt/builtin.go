package prompt

// Template names.
const (
	TemplateParameter = "add-parameter.md"
	TemplateEndpoint  = "add-endpoint.md"
	TemplateModify    = "modify-parameters.md"
	TemplateRemove    = "remove.md"
)

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	TemplateParameter: parameterTemplate,
	TemplateEndpoint:  endpointTemplate,
	TemplateModify:    modifyTemplate,
	TemplateRemove:    removeTemplate,
}

const parameterTemplate = `# Add New Parameter: {{.Schema}}.{{.Parameter}}

## Task: Add support for new parameter ` + "`{{.Parameter}}`" + ` in {{.Schema}}

### Parameter Details:
- **Name**: {{.Parameter}}
- **Type**: {{.Field.Type}}
- **Required**: {{.Field.Required}}
- **Description**: {{default "none" .Field.Description}}
{{- if .Definition}}

### Full Parameter Definition:
` + "```yaml" + `
{{yaml .Definition}}
` + "```" + `
{{- end}}

### Instructions:
1. Add the parameter to the method signature of the endpoint that sends {{.Schema}}
   - Add ` + "`{{.Parameter}}: {{pyType .Field.Type}} = None`" + `
2. Update validators if the parameter needs specific model support
3. Add type hints and docstring documentation

Generate the exact code additions needed.
`

const endpointTemplate = `# Implement New Endpoint: {{.Method}} {{.Path}}

## Task: Create a complete implementation for ` + "`{{.Method}} {{.Path}}`" + `
{{- with .Operation}}{{if .Summary}}

Summary: {{.Summary}}{{end}}{{end}}

### Instructions:
1. Create a new endpoint class if needed
2. Implement sync and async methods
3. Add request and response models
4. Follow the existing endpoint implementations in the client package
5. Add error handling and documentation

Generate the complete implementation for this new endpoint.
`

const modifyTemplate = `# Parameter Modifications Task

Several existing parameters have been modified in the API. These require careful updates to maintain compatibility.

## Modified Parameters:
{{range .Changes}}
### {{.Schema}}.{{.Parameter}}
- **Old Type**: {{.Old.Type}}
- **New Type**: {{.New.Type}}
- **Old Required**: {{.Old.Required}}
- **New Required**: {{.New.Required}}
{{end}}
## Instructions:
1. Review each parameter modification carefully
2. Update type hints and validation
3. Keep backward compatibility where possible
4. Add migration warnings if needed
5. Update tests to cover the new parameter types

Generate the necessary code changes to handle these parameter modifications.
`

const removeTemplate = `# Parameter/Feature Removal Task

The following have been removed from the API:
{{range .Endpoints}}
- endpoint {{.}}{{end}}{{range .Schemas}}
- schema {{.}}{{end}}{{range .Parameters}}
- {{.Schema}}.{{.Parameter}}{{end}}

## Instructions:
1. Mark the removed parameters as deprecated
2. Add deprecation warnings in the client code
3. Filter removed parameters out in the validators
4. Update the documentation to reflect the removals

Handle these through the deprecation system, not direct code removal.
`
