package core

import "testing"

func TestToolContext_StateIsLocalUntilApplied(t *testing.T) {
	rc := newRunContextForTest()
	rc.ReplaceSnapshot(map[string]any{"company_id": "c-1"})

	tc := NewToolContext(rc, "tools", "fc-1")
	if err := tc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tc.WorkspaceID() != "ws-1" || tc.ThreadID() != "th-1" || tc.NodeName() != "tools" {
		t.Fatalf("unexpected identifiers: %s %s %s", tc.WorkspaceID(), tc.ThreadID(), tc.NodeName())
	}

	if v, ok := tc.GetState("company_id"); !ok || v != "c-1" {
		t.Fatalf("expected run state visible, got %v", v)
	}

	tc.SetState("order_id", "o-1")
	if _, ok := rc.GetState("order_id"); ok {
		t.Fatal("tool state must not leak into run before apply")
	}

	tc.Terminate()
	ev := NewFunctionResponseEvent("tools", "fc-1", "create_order", "ok", nil)
	tc.ApplyActions(&ev)

	if ev.Actions.StateDelta["order_id"] != "o-1" {
		t.Fatalf("state delta not applied: %+v", ev.Actions)
	}
	if ev.Actions.Terminate == nil || !*ev.Actions.Terminate {
		t.Fatal("terminate not applied")
	}
}

func TestToolContext_ValidateRequiresCallID(t *testing.T) {
	tc := NewToolContext(newRunContextForTest(), "tools", "")
	if err := tc.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
