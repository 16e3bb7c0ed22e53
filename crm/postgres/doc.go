// Package postgres implements crm.Store on PostgreSQL using pgx/v5.
//
// Usage:
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	if _, err := postgres.Migrate(ctx, pool); err != nil { ... }
//	store := postgres.NewStore(pool)
//
// Orders are announced with pg_notify on the "orders" channel inside the
// inserting transaction, so listeners only see committed orders. Listener
// turns those notifications back into crm.Order values.
package postgres
