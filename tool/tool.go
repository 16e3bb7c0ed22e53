// Package tool implements the function calling subsystem that lets the
// order agent invoke structured capabilities (company lookup, order
// creation) with schema validated arguments and consistent error handling.
package tool

import (
	"fmt"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with a Registry and exposed to the model as function
// definitions. The ToolContext gives access to the run's workspace, thread,
// logger and state delta.
//
// Implementations must be safe for concurrent use: a tool node may execute
// several calls of the same tool in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes attached to ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeAmbiguous  = "AMBIGUOUS"
	CodeUnknown    = "UNKNOWN_TOOL"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
