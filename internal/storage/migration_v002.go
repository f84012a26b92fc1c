package storage

import (
	"context"
	"database/sql"
)

// migrateV002 adds free-text notes owned by a watch event.
func migrateV002(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			watch_history_id INTEGER NOT NULL REFERENCES watch_history(id) ON DELETE CASCADE,
			content          TEXT    NOT NULL CHECK (length(content) > 0),
			created_at       TEXT    NOT NULL DEFAULT (` + sqlNow + `),
			updated_at       TEXT    NOT NULL DEFAULT (` + sqlNow + `)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notes_watch_history_id ON notes(watch_history_id)`,
	})
}
