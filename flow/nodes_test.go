package flow

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/tool"
)

type mockTool struct {
	name     string
	delay    time.Duration
	result   any
	err      error
	panicMsg any
	state    map[string]any
	stop     bool
	running  *int32
	peak     *int32
}

func (mt *mockTool) Name() string               { return mt.name }
func (mt *mockTool) Description() string        { return "mock tool" }
func (mt *mockTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (mt *mockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if mt.running != nil {
		n := atomic.AddInt32(mt.running, 1)
		defer atomic.AddInt32(mt.running, -1)
		for {
			p := atomic.LoadInt32(mt.peak)
			if n <= p || atomic.CompareAndSwapInt32(mt.peak, p, n) {
				break
			}
		}
	}
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	for k, v := range mt.state {
		tc.SetState(k, v)
	}
	if mt.stop {
		tc.Terminate()
	}
	return mt.result, mt.err
}

func assistantCalls(calls ...core.FunctionCall) core.Content {
	parts := make([]core.Part, len(calls))
	for i, c := range calls {
		parts[i] = core.FunctionCallPart{FunctionCall: c}
	}
	return core.Content{Role: core.RoleAssistant, Parts: parts}
}

func TestToolNode_PreservesOrderAndReportsErrors(t *testing.T) {
	reg := tool.NewRegistry(
		&mockTool{name: "slow", delay: 30 * time.Millisecond, result: "slow-done"},
		&mockTool{name: "fast", result: map[string]any{"ok": true}},
		&mockTool{name: "fails", err: errors.New("bad input")},
		&mockTool{name: "panics", panicMsg: "oops"},
	)
	node := NewToolNode(reg)

	state := NewState(assistantCalls(
		core.FunctionCall{ID: "1", Name: "slow"},
		core.FunctionCall{ID: "2", Name: "fast"},
		core.FunctionCall{ID: "3", Name: "fails"},
		core.FunctionCall{ID: "4", Name: "panics"},
		core.FunctionCall{ID: "5", Name: "missing"},
	))

	upd, err := node.Invoke(newRunContext(0), state)
	require.NoError(t, err)
	require.Len(t, upd.Messages, 5)

	var responses []core.FunctionResponse
	for _, m := range upd.Messages {
		assert.Equal(t, core.RoleTool, m.Role)
		responses = append(responses, m.FunctionResponses()...)
	}
	require.Len(t, responses, 5)

	assert.Equal(t, "1", responses[0].ID)
	assert.Equal(t, "slow-done", responses[0].Text())
	assert.Equal(t, `{"ok":true}`, responses[1].Text())
	assert.Contains(t, responses[2].Error, "bad input")
	assert.Contains(t, responses[3].Error, "PANIC")
	assert.Contains(t, responses[4].Error, "UNKNOWN_TOOL")
	assert.False(t, upd.Terminate)
}

func TestToolNode_BoundedParallelism(t *testing.T) {
	var running, peak int32
	mt := &mockTool{name: "work", delay: 20 * time.Millisecond, running: &running, peak: &peak}
	node := NewToolNode(tool.NewRegistry(mt), func(o *ToolNodeOptions) { o.MaxParallel = 2 })

	var calls []core.FunctionCall
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		calls = append(calls, core.FunctionCall{ID: id, Name: "work"})
	}

	upd, err := node.Invoke(newRunContext(0), NewState(assistantCalls(calls...)))
	require.NoError(t, err)
	assert.Len(t, upd.Messages, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestToolNode_AppliesToolActions(t *testing.T) {
	reg := tool.NewRegistry(
		&mockTool{name: "remember", state: map[string]any{"last_company": "c-1"}, result: "ok"},
		&mockTool{name: "finish", stop: true, result: "done"},
	)
	upd, err := NewToolNode(reg).Invoke(newRunContext(0), NewState(assistantCalls(
		core.FunctionCall{ID: "1", Name: "remember"},
		core.FunctionCall{ID: "2", Name: "finish"},
	)))
	require.NoError(t, err)
	assert.Equal(t, "c-1", upd.Values["last_company"])
	assert.True(t, upd.Terminate)
}

func TestToolNode_NoCallsIsNoop(t *testing.T) {
	upd, err := NewToolNode(tool.NewRegistry()).Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleAssistant, "hi")))
	require.NoError(t, err)
	assert.Empty(t, upd.Messages)
}

func TestToolsCondition(t *testing.T) {
	assert.Equal(t, End, ToolsCondition(NewState()))
	assert.Equal(t, End, ToolsCondition(NewState(core.NewTextContent(core.RoleAssistant, "done"))))
	assert.Equal(t, ToolsNode, ToolsCondition(NewState(assistantCalls(core.FunctionCall{ID: "1", Name: "x"}))))
}

func TestTerminationCondition(t *testing.T) {
	route := TerminationCondition("ORDER CREATED", "agent")

	done := NewState(
		assistantCalls(core.FunctionCall{ID: "1", Name: "create_order"}),
		core.NewFunctionResponseContent("1", "create_order", "ORDER CREATED: o-1", nil),
	)
	assert.Equal(t, End, route(done))

	failed := NewState(
		assistantCalls(core.FunctionCall{ID: "1", Name: "create_order"}),
		core.NewFunctionResponseContent("1", "create_order", nil, errors.New("ORDER CREATED never happened")),
	)
	assert.Equal(t, "agent", route(failed))

	// Markers from earlier turns do not count.
	earlier := NewState(
		core.NewFunctionResponseContent("1", "create_order", "ORDER CREATED", nil),
		core.NewTextContent(core.RoleAssistant, "ok"),
	)
	assert.Equal(t, "agent", route(earlier))
}

func TestTerminationCondition_RestrictedToTools(t *testing.T) {
	route := TerminationCondition("ORDER CREATED", "agent", "create_order")

	lookup := NewState(
		assistantCalls(core.FunctionCall{ID: "1", Name: "find_company"}),
		core.NewFunctionResponseContent("1", "find_company", "ORDER CREATED Logistics", nil),
	)
	assert.Equal(t, "agent", route(lookup))

	created := NewState(
		assistantCalls(core.FunctionCall{ID: "1", Name: "find_company"}, core.FunctionCall{ID: "2", Name: "create_order"}),
		core.NewFunctionResponseContent("1", "find_company", "Acme", nil),
		core.NewFunctionResponseContent("2", "create_order", "ORDER CREATED: o-1", nil),
	)
	assert.Equal(t, End, route(created))
}

func TestModelNode_BuildsRequestAndAccumulatesUsage(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddText("hello")
	reg := tool.NewRegistry(&mockTool{name: "find_company"})
	node := NewModelNode(m, reg, func(o *ModelNodeOptions) {
		o.Instruction = "workspace={{.workspace_id}} tone={{.tone}}"
	})

	state := NewState(core.NewTextContent(core.RoleUser, "hi"))
	state.Values["tone"] = "friendly"
	state.Values[UsageKey] = &model.TokenUsage{TotalTokens: 100}

	upd, err := node.Invoke(newRunContext(0), state)
	require.NoError(t, err)
	require.Len(t, upd.Messages, 1)
	assert.Equal(t, "hello", upd.Messages[0].Text())

	usage := upd.Values[UsageKey].(*model.TokenUsage)
	assert.Equal(t, 115, usage.TotalTokens)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "workspace=ws-1 tone=friendly", reqs[0].Instructions)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "find_company", reqs[0].Tools[0].Function.Name)
	assert.Len(t, reqs[0].Contents, 1)
}

func TestModelNode_StreamsPartials(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddText("streamed")
	var partials []string
	node := NewModelNode(m, nil, func(o *ModelNodeOptions) {
		o.Stream = true
		o.OnPartial = func(_ *core.RunContext, r model.Response) { partials = append(partials, r.Content.Text()) }
	})

	_, err := node.Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleUser, "hi")))
	require.NoError(t, err)
	assert.Equal(t, []string{"streamed"}, partials)
}

func TestModelNode_ProviderErrorAbortsRun(t *testing.T) {
	boom := errors.New("provider down")
	m := model.NewScriptedModel("scripted").AddError(boom)
	r, err := NewGraph().
		AddNode("agent", NewModelNode(m, nil)).
		SetEntryPoint("agent").
		AddConditionalEdges("agent", ToolsCondition, map[string]string{ToolsNode: End, End: End}).
		Compile()
	require.NoError(t, err)

	_, err = r.Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleUser, "hi")))
	require.ErrorIs(t, err, boom)
}

func TestAgentLoop_EndToEnd(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddToolCall("c1", "lookup", `{}`).
		AddText("All done.")
	reg := tool.NewRegistry(&mockTool{name: "lookup", result: "found it"})

	r, err := NewGraph().
		AddNode("agent", NewModelNode(m, reg)).
		AddNode(ToolsNode, NewToolNode(reg)).
		SetEntryPoint("agent").
		AddConditionalEdges("agent", ToolsCondition, map[string]string{ToolsNode: ToolsNode, End: End}).
		AddConditionalEdges(ToolsNode, TerminationCondition("ORDER CREATED", "agent"), nil).
		Compile()
	require.NoError(t, err)

	res, err := r.Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleUser, "find acme")))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Steps)
	require.Len(t, res.State.Messages, 4)
	assert.Equal(t, "All done.", res.State.Messages[3].Text())
	assert.Equal(t, 0, m.Remaining())

	// The second model request carries the tool response.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 3)
	assert.Equal(t, "found it", reqs[1].Contents[2].FunctionResponses()[0].Text())
}

func TestAgentLoop_TerminationMarkerEndsRun(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddToolCall("c1", "create", `{}`)
	reg := tool.NewRegistry(&mockTool{name: "create", result: "ORDER CREATED id=o-1"})

	r, err := NewGraph().
		AddNode("agent", NewModelNode(m, reg)).
		AddNode(ToolsNode, NewToolNode(reg)).
		SetEntryPoint("agent").
		AddConditionalEdges("agent", ToolsCondition, nil).
		AddConditionalEdges(ToolsNode, TerminationCondition("ORDER CREATED", "agent"), nil).
		Compile()
	require.NoError(t, err)

	res, err := r.Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleUser, "order")))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 0, m.Remaining())
}

func TestAgentLoop_AssignsMissingCallIDs(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddContent(assistantCalls(
			core.FunctionCall{Name: "lookup", Arguments: `{}`},
			core.FunctionCall{ID: "given", Name: "lookup", Arguments: `{}`},
			core.FunctionCall{Name: "lookup", Arguments: `{}`},
		)).
		AddText("done")
	reg := tool.NewRegistry(&mockTool{name: "lookup", result: "ok"})

	r, err := NewGraph().
		AddNode("agent", NewModelNode(m, reg)).
		AddNode(ToolsNode, NewToolNode(reg)).
		SetEntryPoint("agent").
		AddConditionalEdges("agent", ToolsCondition, nil).
		AddEdge(ToolsNode, "agent").
		Compile()
	require.NoError(t, err)

	res, err := r.Invoke(newRunContext(0), NewState(core.NewTextContent(core.RoleUser, "look")))
	require.NoError(t, err)
	require.Len(t, res.State.Messages, 6)

	calls := res.State.Messages[1].FunctionCalls()
	require.Len(t, calls, 3)
	assert.NotEmpty(t, calls[0].ID)
	assert.Equal(t, "given", calls[1].ID)
	assert.NotEmpty(t, calls[2].ID)
	assert.NotEqual(t, calls[0].ID, calls[2].ID)

	// Stored calls and their responses carry the same ids.
	for i, msg := range res.State.Messages[2:5] {
		responses := msg.FunctionResponses()
		require.Len(t, responses, 1)
		assert.Equal(t, calls[i].ID, responses[0].ID)
	}

	// The model sees the stored ids on its next turn.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, calls, reqs[1].Contents[1].FunctionCalls())
}

func TestToolNode_KeepsCallIDs(t *testing.T) {
	node := NewToolNode(tool.NewRegistry(&mockTool{name: "lookup", result: "ok"}))
	upd, err := node.Invoke(newRunContext(0), NewState(assistantCalls(core.FunctionCall{Name: "lookup"})))
	require.NoError(t, err)
	require.Len(t, upd.Messages, 1)
	assert.Equal(t, "", upd.Messages[0].FunctionResponses()[0].ID)
}
