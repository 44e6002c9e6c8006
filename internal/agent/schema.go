package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// decodeObject strips markdown fences, validates content against schema
// when one is given, then unmarshals into T.
func decodeObject[T any](content string, schema map[string]any) (T, error) {
	var obj T
	content = StripFences(content)
	if content == "" {
		return obj, fmt.Errorf("empty response")
	}

	if schema != nil {
		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewStringLoader(content),
		)
		if err != nil {
			return obj, fmt.Errorf("invalid JSON: %w", err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return obj, fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
		}
	}

	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return obj, fmt.Errorf("invalid JSON: %w", err)
	}
	return obj, nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

// ObjectSchema builds a JSON schema object with the given properties, all
// of them required.
func ObjectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ArrayOf builds a JSON schema array of items.
func ArrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

// Enum builds a string schema restricted to values.
func Enum(values ...string) map[string]any {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return map[string]any{"type": "string", "enum": vs}
}

// Type builds a schema of a primitive JSON type.
func Type(name string) map[string]any {
	return map[string]any{"type": name}
}
