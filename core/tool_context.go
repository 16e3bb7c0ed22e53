package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/supportdesk/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked by a graph. It accumulates EventActions (state
// deltas, termination) without mutating the run until the tool node applies
// them. A ToolContext belongs to exactly one function call and is not shared
// between goroutines.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string
	node           string
	eventActions   EventActions

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext,
// the executing node name and a unique functionCallID.
func NewToolContext(runCtx *RunContext, node, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		node:           node,
		eventActions:   EventActions{},
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// WorkspaceID returns the tenant the run is scoped to.
func (tc *ToolContext) WorkspaceID() string { return tc.runCtx.WorkspaceID }

// ThreadID returns the conversation thread of the run.
func (tc *ToolContext) ThreadID() string { return tc.runCtx.ThreadID }

// UserID returns the principal that started the run.
func (tc *ToolContext) UserID() string { return tc.runCtx.UserID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// NodeName returns the graph node executing the tool.
func (tc *ToolContext) NodeName() string { return tc.node }

// GetState retrieves a value from this call's delta first, then the run state.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if v, ok := tc.eventActions.StateDelta[k]; ok {
		return v, true
	}
	return tc.runCtx.GetState(k)
}

// SetState records a state mutation in the local EventActions delta.
func (tc *ToolContext) SetState(k string, v any) {
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// Terminate requests that the graph stops after the current node.
func (tc *ToolContext) Terminate() {
	b := true
	tc.eventActions.Terminate = &b
	tc.LogDebug("tool.terminate.request", "node", tc.node, "function_call_id", tc.functionCallID)
}

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.runCtx == nil || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}

// ApplyActions merges accumulated EventActions into the provided event.
func (tc *ToolContext) ApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range tc.eventActions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}

	if tc.eventActions.Terminate != nil {
		ev.Actions.Terminate = tc.eventActions.Terminate
	}
}
