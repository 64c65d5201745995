package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create local_users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS local_users (
					login VARCHAR(100) PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					superuser_access BOOLEAN NOT NULL DEFAULT FALSE,
					token_auth VARCHAR(64) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create account_link table",
			SQL: `
				CREATE TABLE IF NOT EXISTS account_link (
					"user" VARCHAR(100) NOT NULL REFERENCES local_users(login) ON DELETE CASCADE,
					provider_user VARCHAR(255) NOT NULL,
					provider VARCHAR(255) NOT NULL,
					date_connected TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (provider_user, provider),
					UNIQUE ("user", provider)
				);
			`,
		},
	}
}

// Migrate applies pending migrations, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"version":     migration.Version,
				"description": migration.Description,
			}).Info("Applied migration")
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
