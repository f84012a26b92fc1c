package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version             string                 `json:"version"`
	DatabasePath        string                 `json:"database_path"`
	DatabaseSizeBytes   int64                  `json:"database_size_bytes"`
	SchemaVersion       int                    `json:"schema_version"`
	TotalEvents         int64                  `json:"total_events"`
	AdEvents            int64                  `json:"ad_events"`
	TotalNotes          int64                  `json:"total_notes"`
	TotalTags           int64                  `json:"total_tags"`
	OldestEvent         string                 `json:"oldest_event,omitempty"`
	NewestEvent         string                 `json:"newest_event,omitempty"`
	LastTakeoutImport   string                 `json:"last_takeout_import,omitempty"`
	LastIncrementalSync string                 `json:"last_incremental_sync,omitempty"`
	RetentionDays       int                    `json:"retention_days"`
	TopChannels         []storage.ChannelCount `json:"top_channels"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *StatusCommand) run(ctx context.Context, s *session) error {
	stats, err := storage.GetStats(ctx, s.db)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	meta := storage.NewSyncMetaRepo(s.db)
	lastImport, err := meta.GetTime(ctx, storage.KeyLastBulkImport)
	if err != nil {
		return err
	}
	lastSync, err := meta.GetTime(ctx, storage.KeyLastIncrementalSync)
	if err != nil {
		return err
	}

	out := statusJSON{
		Version:           c.version,
		DatabasePath:      s.db.Path(),
		DatabaseSizeBytes: s.db.SizeBytes(ctx),
		SchemaVersion:     stats.SchemaVersion,
		TotalEvents:       stats.TotalEvents,
		AdEvents:          stats.AdEvents,
		TotalNotes:        stats.TotalNotes,
		TotalTags:         stats.TotalTags,
		RetentionDays:     s.cfg.Retention.Days,
		TopChannels:       stats.TopChannels,
	}
	if out.TopChannels == nil {
		out.TopChannels = []storage.ChannelCount{}
	}
	if stats.TotalEvents > 0 {
		out.OldestEvent = stats.OldestEvent.UTC().Format(time.RFC3339)
		out.NewestEvent = stats.NewestEvent.UTC().Format(time.RFC3339)
	}
	if lastImport != nil {
		out.LastTakeoutImport = lastImport.UTC().Format(time.RFC3339)
	}
	if lastSync != nil {
		out.LastIncrementalSync = lastSync.UTC().Format(time.RFC3339)
	}

	if s.json {
		return s.writeJSON(out)
	}
	c.printHuman(s, out, stats, lastImport, lastSync)
	return nil
}

func (c *StatusCommand) printHuman(s *session, out statusJSON, stats *storage.Stats, lastImport, lastSync *time.Time) {
	s.println("watchvault status")
	s.println("=================")
	s.printf("Version:       %s\n", c.version)
	s.printf("Database:      %s (%s)\n", out.DatabasePath, humanize.Bytes(uint64(max(out.DatabaseSizeBytes, 0))))
	s.printf("Schema:        v%d\n", out.SchemaVersion)
	s.printf("Events:        %s\n", humanize.Comma(stats.TotalEvents))

	if stats.TotalEvents > 0 {
		pct := float64(stats.AdEvents) / float64(stats.TotalEvents) * 100
		s.printf("Ads:           %s (%.1f%%)\n", humanize.Comma(stats.AdEvents), pct)
		s.printf("Oldest:        %s\n", stats.OldestEvent.Local().Format("2006-01-02"))
		s.printf("Newest:        %s\n", stats.NewestEvent.Local().Format("2006-01-02"))
	} else {
		s.printf("Ads:           %s\n", humanize.Comma(stats.AdEvents))
	}
	s.printf("Notes:         %s\n", humanize.Comma(stats.TotalNotes))
	s.printf("Tags:          %s\n", humanize.Comma(stats.TotalTags))

	if out.RetentionDays > 0 {
		s.printf("Retention:     %d days\n", out.RetentionDays)
	} else {
		s.println("Retention:     keep forever")
	}

	s.println()
	s.printf("Last import:   %s\n", sinceOrNever(lastImport))
	s.printf("Last sync:     %s\n", sinceOrNever(lastSync))

	if len(stats.TopChannels) > 0 {
		s.println()
		s.println("Top Channels:")
		for _, ch := range stats.TopChannels {
			s.printf("  %-30s %s\n", ch.Channel, humanize.Comma(ch.Count))
		}
	}
}

func sinceOrNever(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}
