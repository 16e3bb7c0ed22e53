package flow

import (
	"maps"

	"github.com/hupe1980/supportdesk/core"
)

// State is the data threaded through a graph run.
type State struct {
	Messages []core.Content  `json:"messages"`
	Values   map[string]any `json:"values,omitempty"`
}

// NewState builds a state seeded with messages.
func NewState(messages ...core.Content) State {
	return State{Messages: messages, Values: map[string]any{}}
}

// Clone returns a copy that can be mutated without affecting s.
func (s State) Clone() State {
	msgs := make([]core.Content, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.Clone()
	}
	values := maps.Clone(s.Values)
	if values == nil {
		values = map[string]any{}
	}
	return State{Messages: msgs, Values: values}
}

// LastMessage returns the most recent message, if any.
func (s State) LastMessage() (core.Content, bool) {
	if len(s.Messages) == 0 {
		return core.Content{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// TrailingToolMessages returns the tool messages at the end of the history,
// i.e. the responses produced since the last assistant turn.
func (s State) TrailingToolMessages() []core.Content {
	i := len(s.Messages)
	for i > 0 && s.Messages[i-1].Role == core.RoleTool {
		i--
	}
	return s.Messages[i:]
}

// Update is the partial state a node returns.
type Update struct {
	Messages  []core.Content
	Values    map[string]any
	Terminate bool
}

// MessagesReducer combines existing messages with the ones a node returned.
type MessagesReducer func(current, update []core.Content) []core.Content

// ValuesReducer combines existing values with the ones a node returned.
type ValuesReducer func(current, update map[string]any) map[string]any

// AppendMessages accumulates messages in order.
func AppendMessages(current, update []core.Content) []core.Content {
	out := make([]core.Content, 0, len(current)+len(update))
	out = append(out, current...)
	return append(out, update...)
}

// MergeValues merges update into current; the update wins on key conflicts.
func MergeValues(current, update map[string]any) map[string]any {
	out := maps.Clone(current)
	if out == nil {
		out = map[string]any{}
	}
	maps.Copy(out, update)
	return out
}

func (s State) apply(u Update, msgs MessagesReducer, values ValuesReducer) State {
	next := State{Messages: s.Messages, Values: s.Values}
	if len(u.Messages) > 0 {
		next.Messages = msgs(s.Messages, u.Messages)
	}
	if len(u.Values) > 0 {
		next.Values = values(s.Values, u.Values)
	}
	return next
}
