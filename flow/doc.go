// Package flow provides a small state-graph runtime for tool-calling agents.
//
// A Graph is a set of named nodes joined by static and conditional edges.
// Every node receives the current State and returns an Update which is
// merged into the State by reducers: messages accumulate, values are merged
// key by key. Compile validates the wiring and returns a Runnable whose Run
// method executes the graph step by step and streams one core.Event per
// message a node added.
//
// The prebuilt ModelNode, ToolNode, ToolsCondition and TerminationCondition
// cover the common agent loop:
//
//	Start -> agent -(tool calls?)-> tools -(termination marker?)-> agent ... -> End
package flow
