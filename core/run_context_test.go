package core

import (
	"context"
	"testing"
)

func newRunContextForTest() *RunContext {
	return NewRunContext(context.Background(), RunInfo{WorkspaceID: "ws-1", ThreadID: "th-1"}, 3, nil)
}

func TestRunContext_DefaultsRunID(t *testing.T) {
	rc := newRunContextForTest()
	if rc.RunID == "" {
		t.Fatal("expected generated run id")
	}
	if rc.Logger() == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestRunContext_StateDelta(t *testing.T) {
	rc := newRunContextForTest()
	rc.ReplaceSnapshot(map[string]any{"a": 1})
	rc.SetState("b", 2)

	if v, ok := rc.GetState("a"); !ok || v.(int) != 1 {
		t.Fatalf("snapshot value missing: %v", v)
	}
	if v, ok := rc.GetState("b"); !ok || v.(int) != 2 {
		t.Fatalf("staged value missing: %v", v)
	}

	snap := rc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected merged snapshot of 2 keys, got %v", snap)
	}

	delta := rc.TakeStateDelta()
	if len(delta) != 1 || delta["b"].(int) != 2 {
		t.Fatalf("unexpected delta %v", delta)
	}
	if len(rc.TakeStateDelta()) != 0 {
		t.Fatal("delta should be cleared after take")
	}
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	if l.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", l.Remaining())
	}
	if err := l.Increment(); err == nil {
		t.Fatal("expected limit error")
	}

	unlimited := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		if err := unlimited.Increment(); err != nil {
			t.Fatal(err)
		}
	}
	if unlimited.Remaining() != -1 {
		t.Fatal("expected unlimited marker")
	}
}
