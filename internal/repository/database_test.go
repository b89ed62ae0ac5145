package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests for database operations. They run against a local
// Postgres and skip when none is reachable:
//   DATABASE_PASSWORD=tipster go test ./internal/repository/...

func setupTestDB(t *testing.T) (*Database, context.Context) {
	ctx := context.Background()

	cfg := Config{
		Host:     envOr("TEST_DATABASE_HOST", "localhost"),
		Port:     envOr("TEST_DATABASE_PORT", "5432"),
		Database: envOr("TEST_DATABASE_NAME", "tipster_arena_test"),
		User:     envOr("TEST_DATABASE_USER", "tipster"),
		Password: envOr("TEST_DATABASE_PASSWORD", "tipster"),
		SSLMode:  "disable",
	}

	connectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	db, err := NewDatabase(connectCtx, cfg)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, db.Migrate(ctx), "Failed to apply schema")

	return db, ctx
}

func teardownTestDB(t *testing.T, db *Database) {
	db.Close()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// uniqueName keeps tests independent of rows left by earlier runs
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestDatabaseConnection(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	err := db.Health(ctx)
	assert.NoError(t, err, "Database health check should pass")

	stats := db.PoolStats()
	assert.NotNil(t, stats, "Should return connection pool stats")
	assert.GreaterOrEqual(t, stats["max_conns"].(int32), int32(1), "Should have at least 1 max connection")
}

func TestMigrate_Idempotent(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	assert.NoError(t, db.Migrate(ctx), "Schema should apply twice")
}
