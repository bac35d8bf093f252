package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ============================================================================
// SCHEMA MIGRATIONS
// ============================================================================

type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create spin_records table",
		Up: `
			CREATE TABLE IF NOT EXISTS spin_records (
				id TEXT PRIMARY KEY,
				mode TEXT NOT NULL DEFAULT '',
				options BLOB NOT NULL,
				result TEXT NOT NULL,
				duration_ms INTEGER NOT NULL CHECK (duration_ms >= 0),
				completed_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_spin_records_completed_at ON spin_records(completed_at DESC);
		`,
		Down: `DROP TABLE IF EXISTS spin_records;`,
	},
	{
		Version:     2,
		Description: "Index spin results by mode",
		Up:          `CREATE INDEX IF NOT EXISTS idx_spin_records_mode_result ON spin_records(mode, result);`,
		Down:        `DROP INDEX IF EXISTS idx_spin_records_mode_result;`,
	},
}

// ============================================================================
// MIGRATION MANAGEMENT
// ============================================================================

func RunMigrations(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	applied := 0
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info("applying migration", "version", migration.Version, "description", migration.Description)
		if err := applyMigration(ctx, db, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		applied++
	}

	if applied > 0 {
		log.Info("migrations applied", "count", applied, "from_version", currentVersion)
	} else {
		log.Debug("schema is up to date", "version", currentVersion)
	}
	return nil
}

func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

func getCurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO schema_migrations (version, description) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// RollbackMigration undoes every applied migration above targetVersion,
// newest first.
func RollbackMigration(ctx context.Context, db *sql.DB, targetVersion int, log *slog.Logger) error {
	currentVersion, err := getCurrentVersion(ctx, db)
	if err != nil {
		return err
	}

	if targetVersion >= currentVersion {
		return fmt.Errorf("target version %d must be less than current version %d", targetVersion, currentVersion)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if migration.Version <= targetVersion || migration.Version > currentVersion {
			continue
		}

		log.Info("rolling back migration", "version", migration.Version, "description", migration.Description)
		if err := rollbackOne(ctx, db, migration); err != nil {
			return err
		}
	}
	return nil
}

func rollbackOne(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, migration.Version); err != nil {
		return fmt.Errorf("failed to delete migration record: %w", err)
	}
	return tx.Commit()
}
