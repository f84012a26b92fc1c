package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/ingest"
)

func (s *session) ingester() *ingest.Ingester {
	return ingest.New(s.db, ingest.Options{
		TitlePrefix:     s.cfg.Ingest.TitlePrefix,
		AdMarker:        s.cfg.Ingest.AdMarker,
		ExcludeChannels: s.cfg.Ingest.ExcludeChannels,
		BatchSize:       s.cfg.Archive.ImportBatchSize,
	}, s.logger)
}

// Execute implements the go-flags Commander interface for TakeoutCommand.
func (c *TakeoutCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TakeoutCommand) run(ctx context.Context, s *session) error {
	r, err := s.openInput(c.Args.File)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := s.ingester().ImportTakeout(ctx, r)
	if err != nil {
		return fmt.Errorf("takeout import: %w", err)
	}
	return printIngestResult(s, res)
}

// Execute implements the go-flags Commander interface for SyncCommand.
func (c *SyncCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *SyncCommand) run(ctx context.Context, s *session) error {
	in := s.ingester()

	if c.Checkpoint {
		cp, err := in.Checkpoint(ctx)
		if err != nil {
			return err
		}
		if s.json {
			var v any
			if cp != nil {
				v = cp.UTC().Format(time.RFC3339Nano)
			}
			return s.writeJSON(map[string]any{"checkpoint": v})
		}
		if cp == nil {
			s.println("No events stored yet")
			return nil
		}
		s.println(cp.UTC().Format(time.RFC3339Nano))
		return nil
	}

	if c.Args.File == "" {
		return fmt.Errorf("sync needs a feed file (or - for stdin), or --checkpoint")
	}
	r, err := s.openInput(c.Args.File)
	if err != nil {
		return err
	}
	defer r.Close()

	items, err := ingest.DecodeScrapeFeed(r)
	if err != nil {
		return err
	}
	res, err := in.ApplyScrape(ctx, items)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return printIngestResult(s, res)
}

func printIngestResult(s *session, res *ingest.Result) error {
	if s.json {
		return s.writeJSON(res)
	}
	s.printf("%s read: %s new, %s already present, %s skipped, %s\n",
		humanize.Comma(int64(res.Parsed)),
		humanize.Comma(int64(res.Inserted)),
		humanize.Comma(int64(res.Duplicates)),
		humanize.Comma(int64(res.Skipped)),
		count(int64(len(res.Errors)), "error", "errors"))
	printErrors(s, len(res.Errors), func(i int) string { return res.Errors[i].Error() })
	return nil
}
