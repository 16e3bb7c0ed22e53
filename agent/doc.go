// Package agent implements the order desk agent: a two node tool calling
// loop that turns a natural-language instruction into an order record.
//
// The loop is a compiled flow graph:
//
//	Start -> agent
//	agent --ToolsCondition--> tools | End
//	tools --TerminationCondition--> agent | End
//
// The agent node calls the language model with two bound tools,
// find_company (fuzzy, workspace scoped company lookup) and create_order
// (order insert). Tool failures are fed back to the model as tool
// responses. The run ends when the model answers without requesting a tool
// or when create_order reports the termination marker in its output.
//
// Conversation threads are persisted in a session.Store, so follow-up
// instructions ("the second one") continue the same exchange.
package agent
