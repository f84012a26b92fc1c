package storage

import (
	"context"
	"database/sql"
)

// migrateV003 adds global tags and the video_tags association table.
// Deleting either parent removes the association row.
func migrateV003(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS tags (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			color      TEXT,
			created_at TEXT NOT NULL DEFAULT (` + sqlNow + `)
		)`,

		`CREATE TABLE IF NOT EXISTS video_tags (
			watch_history_id INTEGER NOT NULL REFERENCES watch_history(id) ON DELETE CASCADE,
			tag_id           INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			created_at       TEXT    NOT NULL DEFAULT (` + sqlNow + `),
			PRIMARY KEY (watch_history_id, tag_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_video_tags_tag_id ON video_tags(tag_id)`,
	})
}
