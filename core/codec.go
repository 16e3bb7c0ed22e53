package core

import (
	"encoding/json"
	"fmt"
)

// Part type discriminators used in the JSON encoding of Content.
const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

type jsonPart struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

type jsonContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []jsonPart `json:"parts"`
}

// MarshalJSON encodes parts as objects tagged with a "type" field.
func (c Content) MarshalJSON() ([]byte, error) {
	out := jsonContent{Role: c.Role, Parts: make([]jsonPart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			out.Parts = append(out.Parts, jsonPart{Type: partTypeText, Text: v.Text, Metadata: v.Metadata})
		case DataPart:
			out.Parts = append(out.Parts, jsonPart{Type: partTypeData, Data: v.Data, Metadata: v.Metadata})
		case FunctionCallPart:
			fc := v.FunctionCall
			out.Parts = append(out.Parts, jsonPart{Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: v.Metadata})
		case FunctionResponsePart:
			fr := v.FunctionResponse
			out.Parts = append(out.Parts, jsonPart{Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: v.Metadata})
		default:
			return nil, fmt.Errorf("core: unsupported part type %T", p)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged part encoding produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var in jsonContent
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parts := make([]Part, 0, len(in.Parts))
	for i, p := range in.Parts {
		switch p.Type {
		case partTypeText:
			parts = append(parts, TextPart{Text: p.Text, Metadata: p.Metadata})
		case partTypeData:
			parts = append(parts, DataPart{Data: p.Data, Metadata: p.Metadata})
		case partTypeFunctionCall:
			if p.FunctionCall == nil {
				return fmt.Errorf("core: part %d: missing function_call", i)
			}
			parts = append(parts, FunctionCallPart{FunctionCall: *p.FunctionCall, Metadata: p.Metadata})
		case partTypeFunctionResponse:
			if p.FunctionResponse == nil {
				return fmt.Errorf("core: part %d: missing function_response", i)
			}
			parts = append(parts, FunctionResponsePart{FunctionResponse: *p.FunctionResponse, Metadata: p.Metadata})
		default:
			return fmt.Errorf("core: part %d: unknown type %q", i, p.Type)
		}
	}
	c.Role = in.Role
	c.Parts = parts
	return nil
}
