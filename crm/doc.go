// Package crm holds the customer records the order agent works with:
// companies and the orders placed for them. All data is scoped to a
// workspace (tenant); a store never returns rows of another workspace.
//
// Store is implemented by MemoryStore for tests and local development and
// by crm/postgres for production.
package crm
