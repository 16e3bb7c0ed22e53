package core

import (
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side‑effects or orchestration signals attached to an Event.
// Fields are optional so absence can be distinguished from zero values.
type EventActions struct {
	StateDelta map[string]any `json:"state_delta,omitempty"`
	Terminate  *bool          `json:"terminate,omitempty"`
}

// Event is the unit emitted by a graph run. After emission it should be
// treated as immutable. It captures:
//   - Correlation (RunID, ID, Author = node name)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Error metadata
//
// Content may be nil for control or error-only events.
type Event struct {
	ID           string       `json:"id"`
	RunID        string       `json:"run_id"`
	Author       string       `json:"author"`
	Step         int          `json:"step"`
	Actions      EventActions `json:"actions"`
	Timestamp    time.Time    `json:"timestamp"`
	Content      *Content     `json:"content,omitempty"`
	Partial      *bool        `json:"partial,omitempty"`
	TurnComplete *bool        `json:"turn_complete,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
		Actions:   EventActions{},
	}
}

// NewContentEvent wraps an existing message.
func NewContentEvent(runID, author string, content Content) Event {
	e := NewEvent(runID, author)
	c := content.Clone()
	e.Content = &c
	return e
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(author, message string) Event {
	e := NewEvent("", author)
	c := NewTextContent(RoleAssistant, message)
	e.Content = &c
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(message string) Event {
	e := NewEvent("", RoleUser)
	c := NewTextContent(RoleUser, message)
	e.Content = &c
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named function/tool.
func NewFunctionCallEvent(author, functionName, args string) Event {
	e := NewEvent("", author)
	e.Content = &Content{
		Role: RoleAssistant,
		Parts: []Part{
			FunctionCallPart{FunctionCall: FunctionCall{Name: functionName, Arguments: args}},
		},
	}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a tool invocation.
// If err is non-nil its message is copied into the response Error field.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	e := NewEvent("", author)
	c := NewFunctionResponseContent(id, functionName, result, err)
	e.Content = &c
	return e
}

// NewFunctionResponseContent builds the tool role message for a call result.
func NewFunctionResponseContent(id, functionName string, result any, err error) Content {
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// IsError reports whether the event carries an error message.
func (e Event) IsError() bool { return e.ErrorMessage != nil }

// GetFunctionCalls returns any FunctionCall parts contained within the event content.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionCalls()
}

// GetFunctionResponses returns any FunctionResponse parts contained within the event content.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionResponses()
}

// Text returns the concatenated text parts, or "" for content-less events.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// IsFinalResponse reports whether the event completes an assistant turn:
// a terminate action, or a non-partial message without pending calls/responses.
func (e Event) IsFinalResponse() bool {
	if e.Actions.Terminate != nil && *e.Actions.Terminate {
		return true
	}

	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
