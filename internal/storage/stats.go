package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// GetStats returns aggregate statistics about the archive.
func GetStats(ctx context.Context, q DBTX) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM watch_history", &stats.TotalEvents},
		{"SELECT COUNT(*) FROM watch_history WHERE is_ad = 1", &stats.AdEvents},
		{"SELECT COUNT(*) FROM notes", &stats.TotalNotes},
		{"SELECT COUNT(*) FROM tags", &stats.TotalTags},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats (%s): %w", c.query, err)
		}
	}

	if stats.TotalEvents > 0 {
		var oldest, newest string
		err := q.QueryRowContext(ctx,
			"SELECT MIN(watched_at), MAX(watched_at) FROM watch_history").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("event time range: %w", err)
		}
		stats.OldestEvent, _ = ParseWatchedAt(oldest)
		stats.NewestEvent, _ = ParseWatchedAt(newest)
	}

	version, err := schemaVersion(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	stats.SchemaVersion = version

	rows, err := q.QueryContext(ctx, `
		SELECT channel_name, COUNT(*) AS cnt FROM watch_history
		WHERE channel_name IS NOT NULL
		GROUP BY channel_name ORDER BY cnt DESC, channel_name ASC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("top channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name sql.NullString
			cc   ChannelCount
		)
		if err := rows.Scan(&name, &cc.Count); err != nil {
			return nil, err
		}
		cc.Channel = name.String
		stats.TopChannels = append(stats.TopChannels, cc)
	}

	return stats, rows.Err()
}
