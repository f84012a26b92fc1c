package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *PurgeCommand) run(ctx context.Context, s *session) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		s.println("⚠ WARNING: This will permanently delete ALL watchvault data.")
		s.println("  - All watch history")
		s.println("  - All notes")
		s.println("  - All tags")
		s.println()
		s.println("This action cannot be undone.")
		s.println()
		s.printf(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(s.in)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	var events, tags int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		if events, err = storage.NewHistoryRepo(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if tags, err = storage.NewTagRepo(tx).DeleteAll(ctx); err != nil {
			return err
		}
		meta := storage.NewSyncMetaRepo(tx)
		for _, key := range []string{storage.KeyLastBulkImport, storage.KeyLastIncrementalSync} {
			if _, err := meta.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	s.logger.Info("purged archive", "events", events, "tags", tags)

	if s.json {
		return s.writeJSON(map[string]any{
			"purged":  true,
			"events":  events,
			"tags":    tags,
			"message": "all data deleted",
		})
	}

	s.println("Purged all data. The archive is empty.")
	return nil
}
