// Package session stores conversation threads so follow-up instructions
// continue where the previous run stopped. Threads are scoped to a
// workspace; the same thread id in two workspaces names two threads.
//
// InMemoryStore suits tests and single-process deployments; PostgresStore
// persists threads next to the CRM tables.
package session
