package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/util"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string  `json:"a" description:"Field A"`
	B *int    `json:"b" description:"Optional pointer field"`
	C int     `json:"c,omitempty" description:"Omit empty field"`
	D string  `json:"d,omitempty" enum:"x, y"`
	E float64 `json:"e,omitempty" minimum:"1" maximum:"10"`
	F string  `json:"f,omitempty" maxLength:"4"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, []string{"a"}, util.RequiredFields(schema))

	d := props["d"].(map[string]any)
	assert.Equal(t, []string{"x", "y"}, d["enum"])
	e := props["e"].(map[string]any)
	assert.Equal(t, 1.0, e["minimum"])
	assert.Equal(t, 10.0, e["maximum"])
	f := props["f"].(map[string]any)
	assert.Equal(t, 4, f["maxLength"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":    map[string]any{"type": "integer", "minimum": 1, "maximum": 1000.0},
			"kind": map[string]any{"type": "string", "enum": []any{"a", "b"}},
			"note": map[string]any{"type": "string", "maxLength": 3},
		},
		"required": []any{"x"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		field   string
		message string
	}{
		{name: "ok", params: map[string]any{"x": 5.0, "kind": "a"}},
		{name: "missing required", params: map[string]any{}, field: "x", message: "required"},
		{name: "wrong type", params: map[string]any{"x": "not-int"}, field: "x", message: "expected type integer"},
		{name: "below minimum", params: map[string]any{"x": 0.0}, field: "x", message: "must be >= 1"},
		{name: "enum", params: map[string]any{"x": 1, "kind": "c"}, field: "kind", message: "must be one of"},
		{name: "at maximum", params: map[string]any{"x": 1000.0}},
		{name: "above maximum", params: map[string]any{"x": 1001.0}, field: "x", message: "must be <= 1000"},
		{name: "huge", params: map[string]any{"x": 9.2e18}, field: "x", message: "must be <="},
		{name: "max length counts characters", params: map[string]any{"x": 1, "note": "äöü"}},
		{name: "too long", params: map[string]any{"x": 1, "note": "abcd"}, field: "note", message: "at most 3 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := util.ValidateParameters(tt.params, schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Contains(t, vErr.Message, tt.message)
		})
	}
}

func TestValidateParameters_RequiredAsStringSlice(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
		"required":   []string{"q"},
	}
	err := util.ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'q'")
}

// -------------------- FunctionTool Tests --------------------

func newToolContext(fcID string) *core.ToolContext {
	rc := core.NewRunContext(context.Background(), core.RunInfo{WorkspaceID: "ws-1", ThreadID: "th-1"}, 0, nil)
	return core.NewToolContext(rc, "tools", fcID)
}

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Call(newToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []string{"a"},
	}
	called := false
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		called = true
		return 0, nil
	})

	_, err := tTool.Call(newToolContext("fc2"), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.False(t, called)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(newToolContext("fc3"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_CustomCodePassesThrough(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	lookup := NewFunctionTool("find", "Find", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("lookup: %w", &ToolError{Message: "no company", Code: CodeNotFound})
	})

	_, err := lookup.Call(newToolContext("fc4"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
	assert.Equal(t, "find", toolErr.Tool)
}

// -------------------- Typed Tool Tests --------------------

type orderArgs struct {
	CompanyID string `json:"company_id" description:"Company id"`
	Quantity  int    `json:"quantity" minimum:"1" maximum:"100"`
	Notes     string `json:"notes,omitempty" maxLength:"10"`
}

func TestTypedTool_DecodesArguments(t *testing.T) {
	var got orderArgs
	typed := NewTypedTool("create_order", "Create", func(_ *core.ToolContext, in orderArgs) (any, error) {
		got = in
		return "ok", nil
	})

	assert.Equal(t, []string{"company_id", "quantity"}, util.RequiredFields(typed.Parameters()))

	res, err := typed.Call(newToolContext("fc5"), map[string]any{"company_id": "c-1", "quantity": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, orderArgs{CompanyID: "c-1", Quantity: 3}, got)
}

func TestTypedTool_RejectsBelowMinimum(t *testing.T) {
	typed := NewTypedTool("create_order", "Create", func(_ *core.ToolContext, _ orderArgs) (any, error) {
		return nil, nil
	})

	_, err := typed.Call(newToolContext("fc6"), map[string]any{"company_id": "c-1", "quantity": 0.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestTypedTool_RejectsOutOfBounds(t *testing.T) {
	called := false
	typed := NewTypedTool("create_order", "Create", func(_ *core.ToolContext, _ orderArgs) (any, error) {
		called = true
		return nil, nil
	})

	for _, args := range []map[string]any{
		{"company_id": "c-1", "quantity": 101.0},
		{"company_id": "c-1", "quantity": 1.0, "notes": "eleven char"},
	} {
		_, err := typed.Call(newToolContext("fc7"), args)
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, CodeValidation, toolErr.Code)
	}
	assert.False(t, called)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil }
	schema := map[string]any{"type": "object", "properties": map[string]any{}}

	r := NewRegistry(
		NewFunctionTool("zeta", "last", schema, noop),
		NewFunctionTool("alpha", "first", schema, noop),
	)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())

	_, ok := r.Get("alpha")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	err := r.Register(NewFunctionTool("alpha", "dup", schema, noop))
	assert.Error(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "first", defs[0].Function.Description)
}

func TestNewRegistry_PanicsOnDuplicate(t *testing.T) {
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil }
	assert.Panics(t, func() {
		NewRegistry(
			NewFunctionTool("dup", "", nil, noop),
			NewFunctionTool("dup", "", nil, noop),
		)
	})
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "tool error in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Error())
}
