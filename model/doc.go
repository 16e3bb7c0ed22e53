// Package model defines the provider‑agnostic abstractions for interacting
// with language models inside supportdesk.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement Model in sub packages so the graph
// and agent layers remain decoupled from vendor SDKs.
package model
