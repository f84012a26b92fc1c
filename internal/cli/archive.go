package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/archive"
)

func (s *session) archiveService() *archive.Service {
	return archive.NewService(s.db, archive.Options{
		ExportBatchSize: s.cfg.Archive.ExportBatchSize,
		ImportBatchSize: s.cfg.Archive.ImportBatchSize,
	}, s.logger)
}

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *ExportCommand) run(ctx context.Context, s *session) error {
	svc := s.archiveService()

	// Records go to stdout when no file is given, so the summary is only
	// printed for file output.
	if c.Output == "" || c.Output == "-" {
		_, err := svc.WriteTo(ctx, s.out)
		return err
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.Output, err)
	}
	stats, err := svc.WriteTo(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if s.json {
		return s.writeJSON(stats)
	}
	s.printf("Exported %s to %s\n", count(int64(stats.TotalEntries), "event", "events"), c.Output)
	s.printf("  %s with notes, %s total\n",
		humanize.Comma(int64(stats.EntriesWithNotes)), count(int64(stats.TotalNotes), "note", "notes"))
	s.printf("  %s tagged, %s in store\n",
		humanize.Comma(int64(stats.EntriesWithTags)), count(stats.DistinctTags, "distinct tag", "distinct tags"))
	return nil
}

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *ImportCommand) run(ctx context.Context, s *session) error {
	r, err := s.openInput(c.Args.File)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := s.archiveService().ImportFrom(ctx, r)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if s.json {
		return s.writeJSON(res)
	}
	s.printf("%s imported, %s already present, %s\n",
		humanize.Comma(int64(res.Imported)), humanize.Comma(int64(res.Duplicates)),
		count(int64(len(res.Errors)), "error", "errors"))
	s.printf("  %s created, %s\n",
		count(int64(res.NotesCreated), "note", "notes"),
		count(int64(res.TagAssignments), "tag assignment", "tag assignments"))
	printErrors(s, len(res.Errors), func(i int) string { return res.Errors[i].Error() })
	return nil
}

// maxPrintedErrors caps per-record errors in human output.
const maxPrintedErrors = 10

func printErrors(s *session, n int, msg func(i int) string) {
	for i := 0; i < n && i < maxPrintedErrors; i++ {
		s.printf("  ! %s\n", msg(i))
	}
	if n > maxPrintedErrors {
		s.printf("  ... and %s\n", count(int64(n-maxPrintedErrors), "more", "more"))
	}
}
