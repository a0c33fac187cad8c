package validate

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

// JSONSchema passes when the response parses as JSON and conforms to a
// compiled JSON Schema document.
type JSONSchema struct {
	schema *jsonschema.Schema
}

// NewJSONSchema compiles the schema document. Compilation failures surface
// here so a broken schema fails at suite construction.
func NewJSONSchema(schemaJSON string) (*JSONSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &JSONSchema{schema: schema}, nil
}

func (v *JSONSchema) Validate(response string) (bool, map[string]any) {
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(response))
	if err != nil {
		return false, map[string]any{
			"valid":  false,
			"errors": []string{fmt.Sprintf("response is not valid JSON: %v", err)},
		}
	}
	if err := v.schema.Validate(instance); err != nil {
		return false, map[string]any{
			"valid":  false,
			"errors": []string{err.Error()},
		}
	}
	return true, map[string]any{"valid": true}
}

func (v *JSONSchema) Describe() string {
	return "conforms to JSON schema"
}

// JSONField extracts a field from a JSON response and compares it against
// an expected value. An empty Expect passes whenever the field exists.
type JSONField struct {
	Path   string // gjson path, with or without a leading $. prefix
	Expect string
}

func (v JSONField) Validate(response string) (bool, map[string]any) {
	result := gjson.Get(response, normalizePath(v.Path))
	details := map[string]any{
		"path":  v.Path,
		"value": result.String(),
	}
	if v.Expect != "" {
		details["expected"] = v.Expect
	}

	var matched bool
	switch {
	case !result.Exists():
		matched = false
	case v.Expect == "":
		matched = true
	default:
		matched = result.String() == v.Expect
	}
	details["matched"] = matched
	return matched, details
}

func (v JSONField) Describe() string {
	if v.Expect == "" {
		return fmt.Sprintf("JSON field %s is present", v.Path)
	}
	return fmt.Sprintf("JSON field %s equals %q", v.Path, v.Expect)
}

// normalizePath accepts $.field and bare field syntax alike.
func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			// Bare "$" means the entire document.
			return "@this"
		}
	}
	return path
}
