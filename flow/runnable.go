package flow

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/supportdesk/core"
)

// Runnable is a compiled, immutable graph. It is safe to run concurrently.
type Runnable struct {
	nodes    map[string]Node
	edges    map[string]string
	branches map[string]branch
	opts     CompileOptions
}

// RunResult is the outcome of a synchronous Invoke.
type RunResult struct {
	State  State
	Events []core.Event
	Steps  int
}

// Name returns the graph name used in logs.
func (r *Runnable) Name() string { return r.opts.Name }

// Run executes the graph asynchronously. Events are emitted in order; the
// error channel receives at most one error. Both channels are closed when
// the run ends.
func (r *Runnable) Run(rc *core.RunContext, input State) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		if _, err := r.execute(rc, input, func(ev core.Event) error {
			select {
			case events <- ev:
				return nil
			case <-rc.Done():
				return rc.Err()
			}
		}); err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

// Invoke runs the graph to completion and returns the final state together
// with every emitted event.
func (r *Runnable) Invoke(rc *core.RunContext, input State) (*RunResult, error) {
	res := &RunResult{}
	final, err := r.execute(rc, input, func(ev core.Event) error {
		res.Events = append(res.Events, ev)
		return nil
	})
	res.State = final.state
	res.Steps = final.steps
	return res, err
}

type runOutcome struct {
	state State
	steps int
}

func (r *Runnable) execute(rc *core.RunContext, input State, emit func(core.Event) error) (runOutcome, error) {
	start := time.Now()
	state := input.Clone()
	out := runOutcome{state: state}

	rc.LogInfo("graph.run.start", "graph", r.opts.Name, "run_id", rc.RunID, "messages", len(state.Messages))

	current := r.edges[Start]
	err := func() error {
		for current != End {
			if err := rc.Err(); err != nil {
				return err
			}

			out.steps++
			if err := r.checkLimit(rc, out.steps); err != nil {
				return err
			}

			rc.ReplaceSnapshot(state.Values)
			_ = rc.TakeStateDelta()

			upd, err := r.invokeNode(rc, current, state)
			if err != nil {
				return fmt.Errorf("node %q: %w", current, err)
			}

			if delta := rc.TakeStateDelta(); len(delta) > 0 {
				upd.Values = MergeValues(delta, upd.Values)
			}

			state = state.apply(upd, r.opts.Messages, r.opts.Values)
			out.state = state

			if err := r.emitUpdate(rc, current, out.steps, upd, emit); err != nil {
				return err
			}

			if upd.Terminate {
				rc.LogDebug("graph.run.terminate", "graph", r.opts.Name, "node", current)
				return nil
			}

			next, err := r.next(current, state)
			if err != nil {
				return err
			}
			rc.LogDebug("graph.step", "graph", r.opts.Name, "node", current, "next", next, "step", out.steps)
			current = next
		}
		return nil
	}()

	dur := time.Since(start)
	if err != nil {
		rc.LogError("graph.run.error", "graph", r.opts.Name, "run_id", rc.RunID, "steps", out.steps, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return out, err
	}
	rc.LogInfo("graph.run.complete", "graph", r.opts.Name, "run_id", rc.RunID, "steps", out.steps, "duration_ms", dur.Milliseconds())
	return out, nil
}

func (r *Runnable) checkLimit(rc *core.RunContext, step int) error {
	if r.opts.RecursionLimit > 0 && step > r.opts.RecursionLimit {
		return fmt.Errorf("%w: %d steps", ErrRecursionLimit, r.opts.RecursionLimit)
	}
	if rc.Limiter != nil {
		if err := rc.Limiter.Increment(); err != nil {
			return fmt.Errorf("%w: %w", ErrRecursionLimit, err)
		}
	}
	return nil
}

func (r *Runnable) invokeNode(rc *core.RunContext, name string, state State) (upd Update, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rc.LogError("graph.node.panic", "graph", r.opts.Name, "node", name, "recover", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.nodes[name].Invoke(rc, state)
}

// emitUpdate publishes one event per message in the update. Value changes
// and termination are attached to the last event; an update without
// messages yields a single control event when it carries either.
func (r *Runnable) emitUpdate(rc *core.RunContext, node string, step int, upd Update, emit func(core.Event) error) error {
	var evs []core.Event
	for _, msg := range upd.Messages {
		ev := core.NewContentEvent(rc.RunID, node, msg)
		ev.Step = step
		if msg.Role == core.RoleAssistant && len(msg.FunctionCalls()) == 0 {
			complete := true
			ev.TurnComplete = &complete
		}
		for _, fr := range msg.FunctionResponses() {
			if fr.Error != "" {
				errMsg := fr.Error
				ev.ErrorMessage = &errMsg
				break
			}
		}
		evs = append(evs, ev)
	}

	if len(evs) == 0 && (len(upd.Values) > 0 || upd.Terminate) {
		ev := core.NewEvent(rc.RunID, node)
		ev.Step = step
		evs = append(evs, ev)
	}
	if len(evs) == 0 {
		return nil
	}

	last := &evs[len(evs)-1]
	if len(upd.Values) > 0 {
		last.Actions.StateDelta = upd.Values
	}
	if upd.Terminate {
		t := true
		last.Actions.Terminate = &t
	}

	for _, ev := range evs {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runnable) next(current string, state State) (string, error) {
	if b, ok := r.branches[current]; ok {
		key := b.router(state)
		target := key
		if b.pathMap != nil {
			mapped, ok := b.pathMap[key]
			if !ok {
				return "", fmt.Errorf("%w: %q returned %q", ErrInvalidRoute, current, key)
			}
			target = mapped
		}
		if _, ok := r.nodes[target]; !ok && target != End {
			return "", fmt.Errorf("%w: %q routed to unknown node %q", ErrInvalidRoute, current, target)
		}
		return target, nil
	}
	return r.edges[current], nil
}
