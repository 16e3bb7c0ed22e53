package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestContentJSON_PreservesPartTypes(t *testing.T) {
	in := Content{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "looking up"},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "find_company", Arguments: `{"query":"acme"}`}},
		},
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"type":"function_call"`) {
		t.Fatalf("expected tagged part, got %s", b)
	}

	var out Content
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Role != RoleAssistant || out.Text() != "looking up" {
		t.Fatalf("unexpected content %+v", out)
	}
	calls := out.FunctionCalls()
	if len(calls) != 1 || calls[0].ID != "c1" || calls[0].Arguments != `{"query":"acme"}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestContentJSON_FunctionResponseError(t *testing.T) {
	in := NewFunctionResponseContent("c1", "create_order", nil, errString("no such company"))
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Content
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	frs := out.FunctionResponses()
	if len(frs) != 1 || frs[0].Error != "no such company" || out.Role != RoleTool {
		t.Fatalf("unexpected responses %+v", frs)
	}
}

func TestContentJSON_RejectsUnknownPart(t *testing.T) {
	var out Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"video"}]}`), &out)
	if err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
