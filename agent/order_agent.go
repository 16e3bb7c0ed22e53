package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/flow"
	"github.com/hupe1980/supportdesk/logging"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/session"
	"github.com/hupe1980/supportdesk/tool"
)

// AgentNode is the graph node calling the model.
const AgentNode = "agent"

// DefaultMarker is embedded in create_order output and ends the run.
const DefaultMarker = "ORDER CREATED"

// DefaultInstruction is the system prompt template of the order agent.
const DefaultInstruction = `You are the order desk assistant of workspace {{.workspace_id}}. Today is {{.today}}.

You turn requests from support staff into orders for customer companies.

Follow these steps:
1. Resolve the customer with find_company, passing the company name or a fragment of it.
2. If the match is "unique" or "exact", use that company id.
3. If the match is "ambiguous", list the candidates and ask which one is meant. Never guess.
4. If no company matches, say so and ask for another name.
5. Call create_order with the company id, product and quantity, plus unit price in cents, currency and notes when given.

Prices are in the smallest currency unit. Use {{.currency}} when no currency is mentioned.
Keep answers short.`

// ErrInvalidRequest is returned when a Request lacks a workspace or an instruction.
var ErrInvalidRequest = errors.New("agent: invalid request")

// Options configure an OrderAgent.
type Options struct {
	// Instruction overrides DefaultInstruction.
	Instruction Instruction
	// MaxSteps bounds the graph steps of a single run.
	MaxSteps int
	// HistoryWindow limits the messages sent to the model (0 = all).
	HistoryWindow int
	// SearchLimit caps the candidates find_company returns.
	SearchLimit int
	// Marker ends the run when it appears in tool output. Empty disables it
	// and the model always produces the final answer.
	Marker string
	// MaxParallelTools bounds concurrent tool calls within one turn.
	MaxParallelTools int
	// Currency is offered to the model as the default currency.
	Currency string
	// Stream requests streaming responses; text fragments go to OnPartial.
	Stream    bool
	OnPartial func(text string)
	Logger    logging.Logger
	// Now returns the current time; the date is rendered into the instruction.
	Now func() time.Time
}

// Request is a single instruction for the agent.
type Request struct {
	WorkspaceID string `json:"workspace_id"`
	// ThreadID continues an earlier conversation. Empty starts a new one.
	ThreadID    string `json:"thread_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Instruction string `json:"instruction"`
}

// Result is the outcome of a run.
type Result struct {
	ThreadID string            `json:"thread_id"`
	RunID    string            `json:"run_id"`
	Answer   string            `json:"answer"`
	Orders   []crm.Order       `json:"orders"`
	Events   []core.Event      `json:"events,omitempty"`
	Steps    int               `json:"steps"`
	Usage    *model.TokenUsage `json:"usage,omitempty"`
}

// OrderAgent creates orders from natural-language instructions. It is safe
// for concurrent use; runs on the same thread should be serialized by the
// caller.
type OrderAgent struct {
	graph    *flow.Runnable
	tools    *tool.Registry
	sessions session.Store
	logger   logging.Logger
	opts     Options
}

// New builds an OrderAgent. sessions may be nil, in which case every run
// starts a fresh conversation.
func New(m model.Model, store crm.Store, sessions session.Store, optFns ...func(o *Options)) (*OrderAgent, error) {
	opts := Options{
		Instruction:      NewInstructionFromText(DefaultInstruction),
		MaxSteps:         12,
		HistoryWindow:    40,
		SearchLimit:      5,
		Marker:           DefaultMarker,
		MaxParallelTools: 4,
		Currency:         crm.DefaultCurrency,
		Logger:           logging.NoOpLogger{},
		Now:              time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if m == nil || store == nil {
		return nil, errors.New("agent: model and store are required")
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = NewInstructionFromText(DefaultInstruction)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tools := tool.NewRegistry(
		newFindCompanyTool(store, opts.SearchLimit),
		newCreateOrderTool(store, opts.Marker),
	)

	a := &OrderAgent{tools: tools, sessions: sessions, logger: opts.Logger, opts: opts}

	agentNode := flow.NewModelNode(m, tools, func(o *flow.ModelNodeOptions) {
		o.InstructionProvider = a.instructions
		o.HistoryWindow = opts.HistoryWindow
		o.Stream = opts.Stream
		if opts.OnPartial != nil {
			o.OnPartial = func(_ *core.RunContext, resp model.Response) {
				if text := resp.Content.Text(); text != "" {
					opts.OnPartial(text)
				}
			}
		}
	})
	toolNode := flow.NewToolNode(tools, func(o *flow.ToolNodeOptions) {
		o.MaxParallel = opts.MaxParallelTools
	})

	graph, err := flow.NewGraph().
		AddNode(AgentNode, agentNode).
		AddNode(flow.ToolsNode, toolNode).
		SetEntryPoint(AgentNode).
		AddConditionalEdges(AgentNode, flow.ToolsCondition, map[string]string{
			flow.ToolsNode: flow.ToolsNode,
			flow.End:       flow.End,
		}).
		AddConditionalEdges(flow.ToolsNode, flow.TerminationCondition(opts.Marker, AgentNode, CreateOrderTool), map[string]string{
			AgentNode: AgentNode,
			flow.End:  flow.End,
		}).
		Compile(func(o *flow.CompileOptions) {
			o.Name = "order_agent"
			o.RecursionLimit = opts.MaxSteps
			o.Logger = opts.Logger
		})
	if err != nil {
		return nil, fmt.Errorf("agent: compile graph: %w", err)
	}
	a.graph = graph

	return a, nil
}

// Tools returns the registry of tools bound to the model.
func (a *OrderAgent) Tools() *tool.Registry { return a.tools }

func (a *OrderAgent) instructions(rc *core.RunContext, state flow.State) (string, error) {
	return a.opts.Instruction.Render(rc, state.Values)
}

// Run executes one instruction. The thread history is loaded before and the
// new messages are appended after a successful run; failed runs leave the
// thread untouched.
func (a *OrderAgent) Run(ctx context.Context, req Request) (*Result, error) {
	req.Instruction = strings.TrimSpace(req.Instruction)
	if req.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: workspace_id is required", ErrInvalidRequest)
	}
	if req.Instruction == "" {
		return nil, fmt.Errorf("%w: instruction is required", ErrInvalidRequest)
	}
	if req.ThreadID == "" {
		req.ThreadID = core.NewID()
	}

	var history []core.Content
	if a.sessions != nil {
		h, err := a.sessions.Load(ctx, req.WorkspaceID, req.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("agent: load thread: %w", err)
		}
		history = h
	}

	rc := core.NewRunContext(ctx, core.RunInfo{
		WorkspaceID: req.WorkspaceID,
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
	}, 0, a.logger)

	input := flow.NewState(append(history, core.NewTextContent(core.RoleUser, req.Instruction))...)
	input.Values = map[string]any{
		"today":    a.opts.Now().Format("2006-01-02"),
		"currency": a.opts.Currency,
	}

	start := time.Now()
	rc.LogInfo("agent.run.start", "workspace_id", req.WorkspaceID, "thread_id", req.ThreadID, "run_id", rc.RunID, "history", len(history))

	out, err := a.graph.Invoke(rc, input)
	if err != nil {
		rc.LogError("agent.run.error", "run_id", rc.RunID, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		return nil, fmt.Errorf("agent: run: %w", err)
	}

	added := out.State.Messages[len(history):]
	res := &Result{
		ThreadID: req.ThreadID,
		RunID:    rc.RunID,
		Orders:   createdOrders(added),
		Events:   out.Events,
		Steps:    out.Steps,
	}
	if u, ok := out.State.Values[flow.UsageKey].(*model.TokenUsage); ok {
		res.Usage = u
	}

	answer, synthesized := finalAnswer(added)
	res.Answer = answer
	if synthesized {
		// The marker ended the run on a tool turn; close it with an assistant
		// message so the stored thread stays valid for the next model call.
		added = append(added, core.NewTextContent(core.RoleAssistant, answer))
	}

	if a.sessions != nil {
		if err := a.sessions.Append(ctx, req.WorkspaceID, req.ThreadID, added...); err != nil {
			return nil, fmt.Errorf("agent: save thread: %w", err)
		}
	}

	rc.LogInfo(
		"agent.run.complete",
		"run_id", rc.RunID,
		"steps", res.Steps,
		"orders", len(res.Orders),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res, nil
}

// createdOrders collects the orders reported by successful create_order
// responses, in call order.
func createdOrders(msgs []core.Content) []crm.Order {
	orders := []crm.Order{}
	for _, m := range msgs {
		for _, fr := range m.FunctionResponses() {
			if fr.Name != CreateOrderTool || fr.Error != "" {
				continue
			}
			if r, ok := fr.Response.(*OrderReceipt); ok {
				orders = append(orders, r.Order)
			}
		}
	}
	return orders
}

// finalAnswer returns the text of the closing assistant message. When the
// run ended on tool responses the answer is built from the order receipts
// and synthesized is true.
func finalAnswer(msgs []core.Content) (answer string, synthesized bool) {
	if len(msgs) == 0 {
		return "", false
	}
	last := msgs[len(msgs)-1]
	if last.Role == core.RoleAssistant {
		return last.Text(), false
	}

	var lines []string
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == core.RoleTool; i-- {
		for _, fr := range msgs[i].FunctionResponses() {
			if r, ok := fr.Response.(*OrderReceipt); ok && fr.Error == "" {
				lines = append([]string{r.Message}, lines...)
			}
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
