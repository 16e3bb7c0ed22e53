package flow

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/tool"
)

// ToolNodeOptions configure a ToolNode.
type ToolNodeOptions struct {
	// Name is reported as the node name to tools (default "tools").
	Name string
	// MaxParallel bounds concurrent calls; <1 means one goroutine per call.
	MaxParallel int
}

// ToolNode executes every function call of the last assistant message and
// appends one tool response per call, in call order. Tool failures and
// panics are reported back as error responses rather than failing the run.
type ToolNode struct {
	registry *tool.Registry
	opts     ToolNodeOptions
}

// NewToolNode creates a ToolNode over registry.
func NewToolNode(registry *tool.Registry, optFns ...func(o *ToolNodeOptions)) *ToolNode {
	opts := ToolNodeOptions{Name: "tools", MaxParallel: 4}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ToolNode{registry: registry, opts: opts}
}

type callResult struct {
	content core.Content
	actions *core.EventActions
}

// Invoke implements Node.
func (n *ToolNode) Invoke(rc *core.RunContext, state State) (Update, error) {
	last, ok := state.LastMessage()
	if !ok || last.Role != core.RoleAssistant {
		return Update{}, nil
	}
	calls := last.FunctionCalls()
	if len(calls) == 0 {
		return Update{}, nil
	}

	results := make([]callResult, len(calls))
	batchStart := time.Now()

	var g errgroup.Group
	if n.opts.MaxParallel > 0 {
		g.SetLimit(n.opts.MaxParallel)
	}
	for i, fc := range calls {
		g.Go(func() error {
			results[i] = n.execute(rc, fc)
			return nil
		})
	}
	_ = g.Wait()

	if err := rc.Err(); err != nil {
		return Update{}, err
	}

	upd := Update{Messages: make([]core.Content, 0, len(results))}
	for _, res := range results {
		upd.Messages = append(upd.Messages, res.content)
		if len(res.actions.StateDelta) > 0 {
			if upd.Values == nil {
				upd.Values = map[string]any{}
			}
			maps.Copy(upd.Values, res.actions.StateDelta)
		}
		if res.actions.Terminate != nil && *res.actions.Terminate {
			upd.Terminate = true
		}
	}

	rc.LogDebug(
		"tools.batch.complete",
		"count", len(calls),
		"parallelism", n.opts.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return upd, nil
}

func (n *ToolNode) execute(rc *core.RunContext, fc core.FunctionCall) callResult {
	toolCtx := core.NewToolContext(rc, n.opts.Name, fc.ID)

	start := time.Now()
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", r), tool.CodePanic)
				rc.LogError("tool.call.panic", "tool", fc.Name, "function_call_id", fc.ID, "recover", r)
			}
		}()
		if err = rc.Err(); err != nil {
			return
		}
		result, err = n.executeTool(toolCtx, fc)
	}()

	rc.LogInfo(
		"tool.executed",
		"tool", fc.Name,
		"function_call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return callResult{
		content: core.NewFunctionResponseContent(fc.ID, fc.Name, result, err),
		actions: toolCtx.Actions(),
	}
}

func (n *ToolNode) executeTool(toolCtx *core.ToolContext, fc core.FunctionCall) (any, error) {
	impl, ok := n.registry.Get(fc.Name)
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeUnknown)
	}

	argMap := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &argMap); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(toolCtx, argMap)
}
