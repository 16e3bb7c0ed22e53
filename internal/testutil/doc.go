// Package testutil contains helpers shared by tests: a fluent builder for
// conversation fixtures and a PostgreSQL connection gated on DATABASE_URL.
// Not intended for production usage.
package testutil
