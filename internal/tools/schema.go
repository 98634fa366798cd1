package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles the parameter schema of a tool. A nil schema
// compiles to nil and accepts any arguments.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	doc, err := asJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", name, err)
	}
	loc := "mem:///tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", name, err)
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", name, err)
	}
	return sch, nil
}

// ValidateArguments checks params against a compiled schema. Arguments
// whose value is null count as absent, so an optional parameter may be
// sent as null but a required one may not.
func ValidateArguments(schema *jsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	present := make(map[string]any, len(params))
	for k, v := range params {
		if v != nil {
			present[k] = v
		}
	}
	inst, err := asJSON(present)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.ReplaceAll(strings.TrimSpace(err.Error()), "\n", "; "))
	}
	return nil
}

// asJSON re-decodes v into the value shapes the validator works on:
// numbers as json.Number and every list as []any.
func asJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// Schema builders for tool declarations.

func objectSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enumProp(desc string, values []string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func integerProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func booleanProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func stringArrayProp(desc string) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": map[string]any{"type": "string"}}
}
