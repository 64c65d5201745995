//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupPostgresContainer starts a PostgreSQL container, applies the schema
// migrations and returns a connection. The container is terminated when the
// test finishes.
//
// Usage:
//
//	db := postgres.SetupPostgresContainer(t)
func SetupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("loginoidc_test"),
		postgres.WithUsername("loginoidc"),
		postgres.WithPassword("loginoidc_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, ConnectionConfig{URL: connStr, MaxConns: 10, MinConns: 2, Timeout: 10 * time.Second})
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, nil), "Failed to run migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
		// the test context may already be cancelled here
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	return db
}
