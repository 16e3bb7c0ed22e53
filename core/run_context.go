package core

import (
	"context"
	"maps"
	"sync"

	"github.com/hupe1980/supportdesk/logging"
)

// RunContext carries execution state & helpers for a single graph run.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (WorkspaceID, ThreadID, RunID, UserID)
//   - A step limiter bounding graph execution
//   - A snapshot of the run's key/value state plus staged mutations
//
// State mutations performed via SetState accumulate in a delta until
// TakeStateDelta drains them. All methods are safe for concurrent use.
type RunContext struct {
	Context     context.Context
	WorkspaceID string
	ThreadID    string
	RunID       string
	UserID      string
	Limiter     *StepLimiter

	mu         sync.RWMutex
	state      map[string]any
	stateDelta map[string]any

	*loggerAdapter
}

// RunInfo identifies the tenant, thread and caller of a run.
type RunInfo struct {
	WorkspaceID string
	ThreadID    string
	RunID       string
	UserID      string
}

// NewRunContext constructs a RunContext with empty state.
func NewRunContext(ctx context.Context, info RunInfo, maxSteps int, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := info.RunID
	if runID == "" {
		runID = NewID()
	}
	return &RunContext{
		Context:       ctx,
		WorkspaceID:   info.WorkspaceID,
		ThreadID:      info.ThreadID,
		RunID:         runID,
		UserID:        info.UserID,
		Limiter:       NewStepLimiter(maxSteps),
		state:         map[string]any{},
		stateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the snapshot value.
func (rc *RunContext) GetState(k string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if v, ok := rc.stateDelta[k]; ok {
		return v, true
	}
	v, ok := rc.state[k]
	return v, ok
}

// SetState stages a state mutation in the delta buffer.
func (rc *RunContext) SetState(k string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.stateDelta[k] = v
}

// ReplaceSnapshot swaps the committed state snapshot, e.g. after a graph
// step merged its update.
func (rc *RunContext) ReplaceSnapshot(state map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = maps.Clone(state)
	if rc.state == nil {
		rc.state = map[string]any{}
	}
}

// Snapshot returns a copy of committed state merged with staged changes.
func (rc *RunContext) Snapshot() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := maps.Clone(rc.state)
	if out == nil {
		out = map[string]any{}
	}
	maps.Copy(out, rc.stateDelta)
	return out
}

// TakeStateDelta returns and clears the staged state mutations.
func (rc *RunContext) TakeStateDelta() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	d := rc.stateDelta
	rc.stateDelta = map[string]any{}
	return d
}
