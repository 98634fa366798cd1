package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArguments(t *testing.T) {
	schema, err := compileSchema("sample", objectSchema(map[string]any{
		"title":    stringProp(""),
		"priority": enumProp("", []string{"High", "Low"}),
		"done":     booleanProp(""),
		"ratio":    map[string]any{"type": "number"},
		"top_k":    integerProp(""),
		"items":    stringArrayProp(""),
		"meta":     map[string]any{"type": "object"},
	}, "title"))
	require.NoError(t, err)

	ok := []map[string]any{
		{"title": "x"},
		{"title": "x", "priority": "High", "done": false, "ratio": 0.5, "items": []any{"a"}, "meta": map[string]any{}},
		{"title": "x", "priority": nil},
		{"title": "x", "unknown": 1},
		{"title": "x", "top_k": float64(3), "items": []string{"a", "b"}},
	}
	for _, params := range ok {
		assert.NoError(t, ValidateArguments(schema, params), params)
	}

	bad := []map[string]any{
		{},
		{"title": nil},
		{"title": "x", "priority": "Urgent"},
		{"title": "x", "done": "yes"},
		{"title": "x", "ratio": "half"},
		{"title": "x", "top_k": 2.5},
		{"title": "x", "items": "a"},
		{"title": "x", "items": []any{"a", 2}},
		{"title": "x", "meta": []any{}},
	}
	for _, params := range bad {
		require.ErrorIs(t, ValidateArguments(schema, params), ErrInvalidArguments, params)
	}
}

func TestCompileSchemaFromDecodedJSON(t *testing.T) {
	// Schemas that arrive over tool RPC carry []any.
	schema, err := compileSchema("remote", map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "integer"}},
		"required":   []any{"id"},
	})
	require.NoError(t, err)
	require.ErrorIs(t, ValidateArguments(schema, map[string]any{}), ErrInvalidArguments)
	require.NoError(t, ValidateArguments(schema, map[string]any{"id": float64(2)}))
}

func TestCompileSchemaRejectsMalformedSchema(t *testing.T) {
	_, err := compileSchema("broken", map[string]any{"type": 5})
	require.Error(t, err)

	r := newTestRegistry()
	assert.Panics(t, func() {
		r.Register(&Func{ToolName: "broken", Schema: map[string]any{"type": 5}})
	})
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestNilSchemaAcceptsAnything(t *testing.T) {
	schema, err := compileSchema("free", nil)
	require.NoError(t, err)
	assert.NoError(t, ValidateArguments(schema, map[string]any{"anything": []any{1, "x"}}))
}
