package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/flow"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/session"
)

type fixture struct {
	store    *crm.MemoryStore
	sessions *session.InMemoryStore
	model    *model.ScriptedModel
}

func newFixture(t *testing.T, companies ...crm.NewCompany) (*fixture, map[string]string) {
	t.Helper()
	f := &fixture{
		store:    crm.NewMemoryStore(),
		sessions: session.NewInMemoryStore(),
		model:    model.NewScriptedModel("scripted"),
	}
	ids := map[string]string{}
	for _, c := range companies {
		created, err := f.store.CreateCompany(context.Background(), c)
		require.NoError(t, err)
		ids[c.Name] = created.ID
	}
	return f, ids
}

func (f *fixture) agent(t *testing.T, optFns ...func(o *Options)) *OrderAgent {
	t.Helper()
	fixed := func(o *Options) {
		o.Now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	}
	a, err := New(f.model, f.store, f.sessions, append([]func(o *Options){fixed}, optFns...)...)
	require.NoError(t, err)
	return a
}

func lastToolResponse(t *testing.T, req model.Request) core.FunctionResponse {
	t.Helper()
	require.NotEmpty(t, req.Contents)
	last := req.Contents[len(req.Contents)-1]
	require.Equal(t, core.RoleTool, last.Role)
	frs := last.FunctionResponses()
	require.Len(t, frs, 1)
	return frs[0]
}

func TestOrderAgent_CreatesOrderAndStopsOnMarker(t *testing.T) {
	f, ids := newFixture(t,
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp", Domain: "acme.example"},
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Globex"},
	)
	f.model.
		AddToolCall("call-1", FindCompanyTool, `{"query":"acme"}`).
		AddToolCall("call-2", CreateOrderTool, fmt.Sprintf(
			`{"company_id":%q,"product":"Widget","quantity":3,"unit_price_cents":1250}`, ids["Acme Corp"]))

	a := f.agent(t)
	res, err := a.Run(context.Background(), Request{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Instruction: "Order 3 widgets for acme at 12.50 each",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ThreadID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Steps)
	assert.Equal(t, 0, f.model.Remaining())

	require.Len(t, res.Orders, 1)
	order := res.Orders[0]
	assert.Equal(t, ids["Acme Corp"], order.CompanyID)
	assert.Equal(t, "Acme Corp", order.CompanyName)
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, int64(1250), order.UnitPriceCents)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "user-1", order.CreatedBy)
	assert.Equal(t, crm.OrderStatusPending, order.Status)

	assert.Equal(t, fmt.Sprintf("ORDER CREATED: 3 x Widget for Acme Corp (order %s, total 37.50 USD)", order.ID), res.Answer)

	stored, err := f.store.GetOrder(context.Background(), "ws-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", stored.Product)

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Instructions, "workspace ws-1")
	assert.Contains(t, reqs[0].Instructions, "Today is 2026-10-16")
	require.Len(t, reqs[0].Tools, 2)
	assert.Equal(t, CreateOrderTool, reqs[0].Tools[0].Function.Name)
	assert.Equal(t, FindCompanyTool, reqs[0].Tools[1].Function.Name)

	fr := lastToolResponse(t, reqs[1])
	assert.Empty(t, fr.Error)
	assert.Contains(t, fr.Text(), `"match":"unique"`)
	assert.Contains(t, fr.Text(), ids["Acme Corp"])

	history, err := f.sessions.Load(context.Background(), "ws-1", res.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, core.RoleTool, history[4].Role)
	assert.Equal(t, core.RoleAssistant, history[5].Role)
	assert.Equal(t, res.Answer, history[5].Text())

	usage := res.Usage
	require.NotNil(t, usage)
	assert.Equal(t, 30, usage.TotalTokens)
}

func TestOrderAgent_AmbiguousMatchThenFollowUp(t *testing.T) {
	f, ids := newFixture(t,
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp"},
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Labs"},
	)
	f.model.
		AddToolCall("call-1", FindCompanyTool, `{"query":"acme"}`).
		AddText("I found Acme Corp and Acme Labs. Which one do you mean?").
		AddToolCall("call-2", CreateOrderTool, fmt.Sprintf(
			`{"company_id":%q,"product":"Support plan","quantity":1,"currency":"eur"}`, ids["Acme Labs"]))

	a := f.agent(t)

	first, err := a.Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "One support plan for Acme"})
	require.NoError(t, err)
	assert.Empty(t, first.Orders)
	assert.Equal(t, 3, first.Steps)
	assert.Equal(t, "I found Acme Corp and Acme Labs. Which one do you mean?", first.Answer)

	fr := lastToolResponse(t, f.model.Requests()[1])
	assert.Contains(t, fr.Text(), `"match":"ambiguous"`)
	assert.Contains(t, fr.Text(), ids["Acme Corp"])
	assert.Contains(t, fr.Text(), ids["Acme Labs"])

	second, err := a.Run(context.Background(), Request{WorkspaceID: "ws-1", ThreadID: first.ThreadID, Instruction: "the second one"})
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, "Acme Labs", second.Orders[0].CompanyName)
	assert.Equal(t, "EUR", second.Orders[0].Currency)

	reqs := f.model.Requests()
	require.Len(t, reqs, 3)
	followUp := reqs[2].Contents
	require.Len(t, followUp, 5)
	assert.Equal(t, "One support plan for Acme", followUp[0].Text())
	assert.Equal(t, "the second one", followUp[4].Text())
}

func TestOrderAgent_NoMatchIsReportedToModel(t *testing.T) {
	f, _ := newFixture(t, crm.NewCompany{WorkspaceID: "ws-2", Name: "Globex"})
	f.model.
		AddToolCall("call-1", FindCompanyTool, `{"query":"globex"}`).
		AddText("I could not find Globex. Which company did you mean?")

	res, err := f.agent(t).Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "2 seats for Globex"})
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Equal(t, "I could not find Globex. Which company did you mean?", res.Answer)

	fr := lastToolResponse(t, f.model.Requests()[1])
	assert.Contains(t, fr.Error, "NOT_FOUND")
	assert.Contains(t, fr.Error, `no company matches "globex"`)
}

func TestOrderAgent_ToolErrorsAreFedBack(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{name: "unknown company", args: `{"company_id":"nope","product":"Widget","quantity":1}`, wantErr: "NOT_FOUND"},
		{name: "zero quantity", args: `{"company_id":"nope","product":"Widget","quantity":0}`, wantErr: "VALIDATION_ERROR"},
		{name: "missing product", args: `{"company_id":"nope","quantity":1}`, wantErr: "VALIDATION_ERROR"},
		{name: "bad currency", args: `{"company_id":"%s","product":"Widget","quantity":1,"currency":"EURO"}`, wantErr: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ids := newFixture(t, crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp"})
			args := tt.args
			if tt.name == "bad currency" {
				args = fmt.Sprintf(tt.args, ids["Acme Corp"])
			}
			f.model.
				AddToolCall("call-1", CreateOrderTool, args).
				AddText("Something went wrong.")

			res, err := f.agent(t).Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "order"})
			require.NoError(t, err)
			assert.Empty(t, res.Orders)
			assert.Equal(t, "Something went wrong.", res.Answer)

			fr := lastToolResponse(t, f.model.Requests()[1])
			assert.Contains(t, fr.Error, tt.wantErr)
		})
	}
}

func TestOrderAgent_WithoutMarkerModelAnswers(t *testing.T) {
	f, ids := newFixture(t, crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp"})
	f.model.
		AddToolCall("call-1", CreateOrderTool, fmt.Sprintf(`{"company_id":%q,"product":"Widget","quantity":2}`, ids["Acme Corp"])).
		AddText("Done, 2 widgets ordered for Acme Corp.")

	a := f.agent(t, func(o *Options) { o.Marker = "" })
	res, err := a.Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "2 widgets for Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, "Done, 2 widgets ordered for Acme Corp.", res.Answer)
	require.Len(t, res.Orders, 1)

	fr := lastToolResponse(t, f.model.Requests()[1])
	assert.Contains(t, fr.Text(), "Order created: 2 x Widget for Acme Corp")
}

func TestOrderAgent_InvalidRequest(t *testing.T) {
	f, _ := newFixture(t)
	a := f.agent(t)

	_, err := a.Run(context.Background(), Request{Instruction: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = a.Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, f.model.Requests())
}

func TestOrderAgent_ModelErrorLeavesThreadUntouched(t *testing.T) {
	f, _ := newFixture(t)
	boom := errors.New("provider unavailable")
	f.model.AddError(boom)

	_, err := f.agent(t).Run(context.Background(), Request{WorkspaceID: "ws-1", ThreadID: "t-1", Instruction: "order"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.sessions.Threads())
}

func TestOrderAgent_MaxSteps(t *testing.T) {
	f, _ := newFixture(t, crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp"})
	for i := 0; i < 5; i++ {
		f.model.AddToolCall(fmt.Sprintf("call-%d", i), FindCompanyTool, `{"query":"acme"}`)
	}

	_, err := f.agent(t, func(o *Options) { o.MaxSteps = 3 }).Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "loop"})
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrRecursionLimit)
}

func TestOrderAgent_ParallelCallsInOneTurn(t *testing.T) {
	f, ids := newFixture(t,
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Acme Corp"},
		crm.NewCompany{WorkspaceID: "ws-1", Name: "Globex"},
	)
	f.model.AddContent(core.Content{Role: core.RoleAssistant, Parts: []core.Part{
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "a", Name: CreateOrderTool,
			Arguments: fmt.Sprintf(`{"company_id":%q,"product":"Widget","quantity":1}`, ids["Acme Corp"])}},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "b", Name: CreateOrderTool,
			Arguments: fmt.Sprintf(`{"company_id":%q,"product":"Gadget","quantity":2}`, ids["Globex"])}},
	}})

	res, err := f.agent(t).Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "both"})
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, "Acme Corp", res.Orders[0].CompanyName)
	assert.Equal(t, "Globex", res.Orders[1].CompanyName)

	lines := []string{
		fmt.Sprintf("ORDER CREATED: 1 x Widget for Acme Corp (order %s, total 0.00 USD)", res.Orders[0].ID),
		fmt.Sprintf("ORDER CREATED: 2 x Gadget for Globex (order %s, total 0.00 USD)", res.Orders[1].ID),
	}
	assert.Equal(t, lines[0]+"\n"+lines[1], res.Answer)
}

func TestOrderAgent_InstructionOverride(t *testing.T) {
	f, _ := newFixture(t)
	f.model.AddText("hi")

	a := f.agent(t, func(o *Options) {
		o.Instruction = NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
			return "Custom desk {{.workspace_id}} in {{.currency}}", nil
		})
		o.Currency = "EUR"
	})
	_, err := a.Run(context.Background(), Request{WorkspaceID: "ws-9", Instruction: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Custom desk ws-9 in EUR", f.model.Requests()[0].Instructions)
}

func TestNew_RequiresModelAndStore(t *testing.T) {
	_, err := New(nil, crm.NewMemoryStore(), nil)
	assert.Error(t, err)
	_, err = New(model.NewScriptedModel("m"), nil, nil)
	assert.Error(t, err)
}

func TestOrderAgent_StreamsPartialText(t *testing.T) {
	f, _ := newFixture(t)
	f.model.AddText("Which company should I use?")

	var partials []string
	a := f.agent(t, func(o *Options) {
		o.Stream = true
		o.OnPartial = func(text string) { partials = append(partials, text) }
	})

	res, err := a.Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "order something"})
	require.NoError(t, err)
	assert.Equal(t, "Which company should I use?", res.Answer)
	assert.Equal(t, []string{"Which company should I use?"}, partials)

	reqs := f.model.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Stream)
}

func TestOrderAgent_MarkerInCompanyNameDoesNotEndRun(t *testing.T) {
	f, ids := newFixture(t, crm.NewCompany{WorkspaceID: "ws-1", Name: "ORDER CREATED Logistics"})
	f.model.
		AddToolCall("call-1", FindCompanyTool, `{"query":"logistics"}`).
		AddText("How many units for ORDER CREATED Logistics?")

	res, err := f.agent(t).Run(context.Background(), Request{WorkspaceID: "ws-1", Instruction: "order for logistics"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Empty(t, res.Orders)
	assert.Equal(t, "How many units for ORDER CREATED Logistics?", res.Answer)
	assert.Equal(t, 0, f.model.Remaining())

	fr := lastToolResponse(t, f.model.Requests()[1])
	assert.Contains(t, fr.Text(), ids["ORDER CREATED Logistics"])

	history, err := f.sessions.Load(context.Background(), "ws-1", res.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, core.RoleAssistant, history[3].Role)
}
