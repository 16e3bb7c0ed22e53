package flow

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/util"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/tool"
)

// UsageKey is the state value holding the accumulated *model.TokenUsage of a run.
const UsageKey = "usage"

// InstructionProvider resolves the system instructions for a model turn.
type InstructionProvider func(rc *core.RunContext, state State) (string, error)

// ModelNodeOptions configure a ModelNode.
type ModelNodeOptions struct {
	// Instruction is a text/template rendered against the run state values.
	Instruction string
	// InstructionProvider overrides Instruction when set.
	InstructionProvider InstructionProvider
	// HistoryWindow limits how many trailing messages are sent (0 = all).
	HistoryWindow int
	// Stream requests streaming from the provider; fragments go to OnPartial.
	Stream    bool
	OnPartial func(rc *core.RunContext, resp model.Response)
}

// ModelNode calls a language model with the conversation so far and the
// tools of a registry, and appends the assistant reply to the state.
type ModelNode struct {
	model model.Model
	tools *tool.Registry
	opts  ModelNodeOptions
}

// NewModelNode creates a ModelNode. tools may be nil.
func NewModelNode(m model.Model, tools *tool.Registry, optFns ...func(o *ModelNodeOptions)) *ModelNode {
	opts := ModelNodeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelNode{model: m, tools: tools, opts: opts}
}

// Invoke implements Node.
func (n *ModelNode) Invoke(rc *core.RunContext, state State) (Update, error) {
	instructions, err := n.resolveInstructions(rc, state)
	if err != nil {
		return Update{}, err
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     historyWindow(state.Messages, n.opts.HistoryWindow),
		Stream:       n.opts.Stream,
	}
	if n.tools != nil && n.tools.Len() > 0 {
		req.Tools = n.tools.Definitions()
	}

	var onPartial func(model.Response)
	if n.opts.OnPartial != nil {
		onPartial = func(resp model.Response) { n.opts.OnPartial(rc, resp) }
	}

	info := n.model.Info()
	start := time.Now()
	resp, err := model.Collect(rc.Context, n.model, req, onPartial)
	if err != nil {
		rc.LogError("model.call.error", "model", info.Name, "provider", info.Provider, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		return Update{}, fmt.Errorf("model %s: %w", info.Name, err)
	}

	usage := accumulatedUsage(state.Values)
	usage.Add(resp.Usage)

	rc.LogInfo(
		"model.call.success",
		"model", info.Name,
		"provider", info.Provider,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", resp.FinishReason,
		"tool_calls", len(resp.Content.FunctionCalls()),
		"total_tokens", usage.TotalTokens,
	)

	return Update{
		Messages: []core.Content{withCallIDs(resp.Content)},
		Values:   map[string]any{UsageKey: usage},
	}, nil
}

// withCallIDs gives function calls without a provider id a generated one
// before the reply is stored, so responses can reference their call.
func withCallIDs(c core.Content) core.Content {
	var parts []core.Part
	for i, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID != "" {
			continue
		}
		if parts == nil {
			parts = slices.Clone(c.Parts)
		}
		fc.FunctionCall.ID = "call_" + core.NewID()
		parts[i] = fc
	}
	if parts != nil {
		c.Parts = parts
	}
	return c
}

func (n *ModelNode) resolveInstructions(rc *core.RunContext, state State) (string, error) {
	if n.opts.InstructionProvider != nil {
		instr, err := n.opts.InstructionProvider(rc, state)
		if err != nil {
			return "", fmt.Errorf("failed to resolve instruction: %w", err)
		}
		return instr, nil
	}

	vars := maps.Clone(state.Values)
	if vars == nil {
		vars = map[string]any{}
	}
	vars["workspace_id"] = rc.WorkspaceID
	vars["thread_id"] = rc.ThreadID
	vars["user_id"] = rc.UserID

	instr, err := util.RenderTemplate(n.opts.Instruction, vars)
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return instr, nil
}

func accumulatedUsage(values map[string]any) *model.TokenUsage {
	total := &model.TokenUsage{}
	if prev, ok := values[UsageKey].(*model.TokenUsage); ok && prev != nil {
		*total = *prev
	}
	return total
}

// historyWindow returns the trailing window of messages. The window never
// starts with tool responses whose originating call was cut off.
func historyWindow(messages []core.Content, window int) []core.Content {
	if window <= 0 || len(messages) <= window {
		return messages
	}
	msgs := messages[len(messages)-window:]
	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}
	return msgs
}
