package apispec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Canonicalize converts a decoded YAML value into a form encoding/json can
// serialize deterministically. Mappings with non-string keys (unquoted
// response codes such as 200) become map[string]any.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Canonicalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Canonicalize(val)
		}
		return out
	case time.Time:
		// yaml.v3 resolves unquoted dates; keep the literal form.
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

// ContentHash returns a stable 16-hex-digit hash of v. Map keys are sorted
// by encoding/json, so semantically identical values hash identically.
func ContentHash(v any) (string, error) {
	data, err := json.Marshal(Canonicalize(v))
	if err != nil {
		return "", fmt.Errorf("canonical encode: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}
