package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// KeySchemaVersion is the sync_meta key holding the applied schema version.
const KeySchemaVersion = "schema_version"

// migration represents a single schema migration step.
type migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the ordered list of schema steps. Versions must be ascending.
var migrations = []migration{
	{Version: 1, Name: "watch_history", Apply: migrateV001},
	{Version: 2, Name: "notes", Apply: migrateV002},
	{Version: 3, Name: "tags", Apply: migrateV003},
}

// TargetVersion returns the schema version this build migrates to.
func TargetVersion() int {
	return migrations[len(migrations)-1].Version
}

// MigrationRunner applies pending migrations to a SQLite database.
type MigrationRunner struct {
	db         *DB
	logger     *slog.Logger
	migrations []migration
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(db *DB, logger *slog.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// Run applies all pending migrations in order. It enables WAL mode and
// foreign keys, creates sync_meta (which holds the version), then applies
// each step whose version is above the stored one.
func (r *MigrationRunner) Run(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (`+sqlNow+`)
		)
	`); err != nil {
		return fmt.Errorf("create sync_meta table: %w", err)
	}

	current, err := r.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}

		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		r.logger.Info("applied migration", "version", m.Version, "name", m.Name)
		current = m.Version
	}

	return nil
}

// Version returns the stored schema version, or 0 on a fresh database.
func (r *MigrationRunner) Version(ctx context.Context) (int, error) {
	return schemaVersion(ctx, r.db)
}

func schemaVersion(ctx context.Context, q DBTX) (int, error) {
	var value string
	err := q.QueryRowContext(ctx,
		"SELECT value FROM sync_meta WHERE key = ?", KeySchemaVersion,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", value, err)
	}
	return v, nil
}

// apply executes a migration inside a transaction and records its version.
func (r *MigrationRunner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, `+sqlNow+`)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		KeySchemaVersion, strconv.Itoa(m.Version),
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// execAll runs each statement in order on tx.
func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
