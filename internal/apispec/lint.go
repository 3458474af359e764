package apispec

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Lint loads raw as an OpenAPI 3 document and returns the validation
// problems found. An unloadable document yields a single problem. Problems
// are advisory: the monitor reports them but never blocks on them.
func Lint(ctx context.Context, raw []byte) []string {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return []string{fmt.Sprintf("load: %v", err)}
	}

	err = doc.Validate(ctx)
	if err == nil {
		return nil
	}

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		out := make([]string, 0, len(multi))
		for _, e := range multi {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
