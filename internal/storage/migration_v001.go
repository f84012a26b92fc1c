package storage

import (
	"context"
	"database/sql"
)

// migrateV001 creates the watch_history table and its indexes. The
// (video_id, watched_at) unique constraint is the deduplication backstop.
func migrateV001(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS watch_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id      TEXT    NOT NULL,
			title         TEXT    NOT NULL,
			url           TEXT    NOT NULL,
			channel_name  TEXT,
			channel_url   TEXT,
			thumbnail_url TEXT    NOT NULL DEFAULT '',
			watched_at    TEXT    NOT NULL,
			is_ad         BOOLEAN NOT NULL DEFAULT 0,
			source        TEXT    NOT NULL CHECK (source IN ('takeout', 'scrape')),
			created_at    TEXT    NOT NULL DEFAULT (` + sqlNow + `),
			updated_at    TEXT    NOT NULL DEFAULT (` + sqlNow + `),
			UNIQUE (video_id, watched_at)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_watch_history_watched_at   ON watch_history(watched_at)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_history_video_id     ON watch_history(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_history_title        ON watch_history(title)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_history_channel_name ON watch_history(channel_name)`,
	})
}
