// Package core provides the foundational conversation types and execution
// contexts shared by the model, tool, flow and agent packages:
//
//   - Content / Part (role based messages including function calls and responses)
//   - Events (immutable records of what a graph node produced)
//   - RunContext / ToolContext (scoped execution and tool sandboxing)
//   - StepLimiter (bounded graph execution)
//
// Persistence, provider SDKs and orchestration live in their own packages to
// keep this package dependency free apart from uuid.
package core
