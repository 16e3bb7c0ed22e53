package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/util"
)

// NewTypedTool wraps fn so that validated arguments are decoded into T.
// The schema is derived from T with util.CreateSchema; struct tags control
// names, descriptions, enum values and minimums.
//
//	type lookupArgs struct {
//	  Query string `json:"query" description:"Company name or fragment"`
//	}
//
//	t := NewTypedTool("find_company", "Find companies", func(tc *core.ToolContext, in lookupArgs) (any, error) {
//	  ...
//	})
func NewTypedTool[T any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args T) (any, error),
) *FunctionTool {
	var zero T
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(tc *core.ToolContext, args map[string]any) (any, error) {
		typed, err := decodeArgs[T](args)
		if err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation}
		}
		return fn(tc, typed)
	})
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}
