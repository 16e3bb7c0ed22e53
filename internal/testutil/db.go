package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB wraps a PostgreSQL connection pool for testing.
type TestDB struct {
	Pool *pgxpool.Pool
}

// RequireIntegration skips the test unless DATABASE_URL is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
}

// NewTestDB connects to DATABASE_URL, skipping the test when it is unset.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	RequireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping database: %v", err)
	}

	db := &TestDB{Pool: pool}
	t.Cleanup(db.Close)
	return db
}

// Close closes the database connection.
func (db *TestDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanTables truncates the CRM tables for test isolation.
func (db *TestDB) CleanTables(ctx context.Context) error {
	for _, table := range []string{"orders", "companies"} {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}
