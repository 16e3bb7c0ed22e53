// Package server exposes the order agent and the CRM data the single-page
// app consumes over HTTP.
//
// Routes (all under bearer JWT auth except /healthz):
//
//	POST /v1/agent/orders      run the order agent on an instruction
//	GET  /v1/orders            list orders of the caller's workspace
//	GET  /v1/orders/{id}       fetch one order
//	GET  /v1/companies?q=      fuzzy company search
//	POST /v1/companies         create a company
//	GET  /v1/events            server-sent order events
//	GET  /healthz              liveness and database check
//
// Every query is scoped to the workspace named in the caller's token.
package server
