package agent

import (
	"maps"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/util"
)

// Provider supplies instruction text at runtime, e.g. per workspace prompts
// loaded from a database.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func adapts an ordinary function to Provider.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction is either a static template or a dynamic provider. Both are
// rendered as text/template against the run variables (workspace_id,
// thread_id, user_id, today, currency).
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic reports whether the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether neither text nor provider is set.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the raw instruction text, invoking the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}
	return i.text, nil
}

// Render resolves the instruction and executes it as a template over vars
// plus the run identifiers.
func (i Instruction) Render(rc *core.RunContext, vars map[string]any) (string, error) {
	text, err := i.Resolve(rc)
	if err != nil {
		return "", err
	}

	data := maps.Clone(vars)
	if data == nil {
		data = map[string]any{}
	}
	data["workspace_id"] = rc.WorkspaceID
	data["thread_id"] = rc.ThreadID
	data["user_id"] = rc.UserID

	return util.RenderTemplate(text, data)
}
