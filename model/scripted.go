package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/supportdesk/core"
)

// ScriptedModel is a deterministic in‑memory Model for tests and local demos.
// Each Generate call pops the next scripted turn; requests are recorded so
// tests can assert on what the graph sent.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []scriptedTurn
	requests []Request
}

type scriptedTurn struct {
	content core.Content
	usage   *TokenUsage
	err     error
}

// NewScriptedModel constructs an empty ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
}

// AddText queues an assistant turn containing only text.
func (m *ScriptedModel) AddText(text string) *ScriptedModel {
	return m.AddContent(core.NewTextContent(core.RoleAssistant, text))
}

// AddToolCall queues an assistant turn requesting a single tool call.
func (m *ScriptedModel) AddToolCall(id, name, args string) *ScriptedModel {
	return m.AddContent(core.Content{
		Role:  core.RoleAssistant,
		Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}}},
	})
}

// AddContent queues an arbitrary assistant turn.
func (m *ScriptedModel) AddContent(c core.Content) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, scriptedTurn{content: c, usage: &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})
	return m
}

// AddError queues a provider failure.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, scriptedTurn{err: err})
	return m
}

// Requests returns a copy of all requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining reports how many scripted turns are left.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Generate implements Model. In streaming mode the text of the turn is
// additionally emitted as a single partial chunk before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		turn scriptedTurn
		ok   bool
	)
	if len(m.turns) > 0 {
		turn, m.turns, ok = m.turns[0], m.turns[1:], true
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if !ok {
			errCh <- fmt.Errorf("scripted model %q: no turns left", m.info.Name)
			return
		}
		if turn.err != nil {
			errCh <- turn.err
			return
		}

		if req.Stream {
			if text := turn.content.Text(); text != "" {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, text)}:
				}
			}
		}

		finish := "stop"
		if len(turn.content.FunctionCalls()) > 0 {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Content: turn.content.Clone(), FinishReason: finish, Usage: turn.usage}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

var _ Model = (*ScriptedModel)(nil)
