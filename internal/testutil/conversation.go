package testutil

import (
	"github.com/hupe1980/supportdesk/core"
)

// ConversationBuilder provides a fluent helper for constructing message
// histories in tests.
//
//	msgs := NewConversation().User("order 3 widgets").Call("c1", "find_company", `{"query":"acme"}`).
//	  Result("c1", "find_company", "[...]").Assistant("Which Acme?").Build()
type ConversationBuilder struct {
	messages []core.Content
}

// NewConversation creates an empty builder.
func NewConversation() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user text message (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.messages = append(b.messages, core.NewTextContent(core.RoleUser, text))
	return b
}

// Assistant appends an assistant text message (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.messages = append(b.messages, core.NewTextContent(core.RoleAssistant, text))
	return b
}

// Call appends an assistant message requesting one tool call (chainable).
func (b *ConversationBuilder) Call(id, name, args string) *ConversationBuilder {
	b.messages = append(b.messages, core.Content{
		Role:  core.RoleAssistant,
		Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}}},
	})
	return b
}

// Result appends the tool response for a call (chainable).
func (b *ConversationBuilder) Result(id, name string, result any) *ConversationBuilder {
	b.messages = append(b.messages, core.NewFunctionResponseContent(id, name, result, nil))
	return b
}

// Failure appends a failed tool response for a call (chainable).
func (b *ConversationBuilder) Failure(id, name string, err error) *ConversationBuilder {
	b.messages = append(b.messages, core.NewFunctionResponseContent(id, name, nil, err))
	return b
}

// Build returns a copy of the accumulated messages.
func (b *ConversationBuilder) Build() []core.Content {
	out := make([]core.Content, len(b.messages))
	for i, m := range b.messages {
		out[i] = m.Clone()
	}
	return out
}
