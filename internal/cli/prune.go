package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	return withSession(c.globals, func(ctx context.Context, s *session) error {
		return c.run(ctx, s, time.Now())
	})
}

// retention resolves the cutoff age from --older-than or the config.
func (c *PruneCommand) retention(s *session) (time.Duration, error) {
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return 0, fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
		}
		return d, nil
	}
	if s.cfg.Retention.Days > 0 {
		return time.Duration(s.cfg.Retention.Days) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("no retention period: pass --older-than or set retention.days in the config")
}

func (c *PruneCommand) run(ctx context.Context, s *session, now time.Time) error {
	age, err := c.retention(s)
	if err != nil {
		return err
	}
	cutoff := now.Add(-age)
	history := storage.NewHistoryRepo(s.db)

	var n int64
	if c.DryRun {
		n, err = history.CountBefore(ctx, cutoff)
	} else {
		n, err = history.DeleteBefore(ctx, cutoff)
	}
	if err != nil {
		return err
	}
	if !c.DryRun {
		s.logger.Info("pruned events", "count", n, "cutoff", cutoff)
	}

	if s.json {
		return s.writeJSON(map[string]any{
			"dry_run": c.DryRun,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
			"count":   n,
		})
	}

	verb := "Pruned"
	if c.DryRun {
		verb = "Would prune"
	}
	s.printf("%s %s older than %s (before %s)\n",
		verb, count(n, "event", "events"), formatDurationHuman(age), humanize.Time(cutoff))
	return nil
}
