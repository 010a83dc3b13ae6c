package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration is one versioned schema change, applied in its own transaction
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations are applied in order; never edit one that has shipped
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_previews",
		SQL: `
			CREATE TABLE IF NOT EXISTS previews (
				id UUID PRIMARY KEY,
				url TEXT NOT NULL UNIQUE,
				metadata JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				error TEXT,
				resolved_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE,

				CHECK (status IN ('pending', 'processing', 'complete', 'failed'))
			);

			CREATE INDEX IF NOT EXISTS idx_previews_created
			ON previews(created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_previews_status
			ON previews(status);
		`,
	},
	{
		Version: 2,
		Name:    "index_preview_site_name",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_previews_site_name
			ON previews ((metadata->>'site_name'));
		`,
	},
}

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	logger.Info("Running database migrations...")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion, err := GetMigrationStatus(db)
	if err != nil {
		return err
	}

	logger.Info("Current migration version", "version", currentVersion)

	pending := pendingMigrations(migrations, currentVersion)
	for _, migration := range pending {
		logger.Info("Applying migration",
			"version", migration.Version,
			"name", migration.Name,
		)

		if err := applyMigration(db, migration); err != nil {
			return err
		}

		logger.Info("Migration applied successfully", "version", migration.Version)
	}

	if len(pending) == 0 {
		logger.Info("No migrations to apply - database is up to date")
	} else {
		logger.Info("Database migrations completed", "applied", len(pending))
	}

	return nil
}

// pendingMigrations returns the migrations newer than current, in order
func pendingMigrations(all []Migration, current int) []Migration {
	var pending []Migration
	for _, m := range all {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}

// GetMigrationStatus returns the highest applied migration version
func GetMigrationStatus(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration status: %w", err)
	}
	return version, nil
}

// LatestMigrationVersion is the version a fully migrated database reports
func LatestMigrationVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// ResetDatabase drops all tables (for testing)
func ResetDatabase(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	logger.Warn("Resetting database - all data will be lost")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS previews CASCADE",
		"DROP TABLE IF EXISTS schema_migrations CASCADE",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}

	logger.Info("Database reset completed")
	return nil
}
