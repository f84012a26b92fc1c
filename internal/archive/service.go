package archive

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/runnerr0/watchvault/internal/storage"
)

const (
	DefaultExportBatchSize = 500
	DefaultImportBatchSize = 500

	// DefaultMaxLineBytes bounds one portable line. Notes are free-form, so
	// this is well above anything a real record needs.
	DefaultMaxLineBytes = 16 << 20
)

// Options sizes the batches used for export reads and import transactions.
type Options struct {
	ExportBatchSize int
	ImportBatchSize int
	MaxLineBytes    int
}

// Service exports and imports whole archives.
type Service struct {
	db     *storage.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service over db. A nil logger discards output.
func NewService(db *storage.DB, opts Options, logger *slog.Logger) *Service {
	if opts.ExportBatchSize <= 0 {
		opts.ExportBatchSize = DefaultExportBatchSize
	}
	if opts.ImportBatchSize <= 0 {
		opts.ImportBatchSize = DefaultImportBatchSize
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{db: db, opts: opts, logger: logger, now: time.Now}
}

// ExportAll reads every watch event, oldest first, together with its note
// contents and tag names.
func (s *Service) ExportAll(ctx context.Context) (*Export, error) {
	out := &Export{Entries: []Record{}, ExportedAt: s.now().UTC()}
	stats, err := s.walk(ctx, func(r Record) error {
		out.Entries = append(out.Entries, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Stats = stats
	return out, nil
}

// WriteTo streams the portable form of the archive to w, one record per line.
func (s *Service) WriteTo(ctx context.Context, w io.Writer) (Stats, error) {
	bw := bufio.NewWriter(w)
	stats, err := s.walk(ctx, func(r Record) error {
		line, err := r.MarshalLine()
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.VideoID, err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	})
	if err != nil {
		return Stats{}, err
	}
	if err := bw.Flush(); err != nil {
		return Stats{}, fmt.Errorf("flush export: %w", err)
	}
	return stats, nil
}

// ExportToPortableText returns the whole archive in the portable format.
func (s *Service) ExportToPortableText(ctx context.Context) (string, error) {
	var sb strings.Builder
	if _, err := s.WriteTo(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// walk visits every event in fixed-size pages inside one read snapshot, so
// the export is consistent without holding the write lock. Annotations for
// a page are fetched after its rows are closed; the store has a single
// connection.
func (s *Service) walk(ctx context.Context, visit func(Record) error) (Stats, error) {
	var stats Stats

	err := s.db.ReadSnapshot(ctx, func(q storage.DBTX) error {
		history := storage.NewHistoryRepo(q)
		notes := storage.NewNoteRepo(q)
		videoTags := storage.NewVideoTagRepo(q)

		for offset := 0; ; offset += s.opts.ExportBatchSize {
			page, err := history.Query(ctx, storage.QueryOptions{
				Limit:    s.opts.ExportBatchSize,
				Offset:   offset,
				OrderBy:  storage.OrderByWatchedAt,
				OrderDir: storage.SortAsc,
			})
			if err != nil {
				return fmt.Errorf("read export page at %d: %w", offset, err)
			}
			if len(page) == 0 {
				break
			}

			ids := make([]int64, len(page))
			for i, e := range page {
				ids[i] = e.ID
			}
			contents, err := notes.ContentsByEvents(ctx, ids)
			if err != nil {
				return err
			}
			tagNames, err := videoTags.TagNamesByEvents(ctx, ids)
			if err != nil {
				return err
			}

			for _, e := range page {
				r := NewRecord(e, contents[e.ID], tagNames[e.ID])
				stats.TotalEntries++
				stats.TotalNotes += len(r.Notes)
				if len(r.Notes) > 0 {
					stats.EntriesWithNotes++
				}
				if len(r.Tags) > 0 {
					stats.EntriesWithTags++
				}
				if err := visit(r); err != nil {
					return err
				}
			}
			s.logger.Debug("export page read", "offset", offset, "rows", len(page))

			if len(page) < s.opts.ExportBatchSize {
				break
			}
		}

		n, err := storage.NewTagRepo(q).Count(ctx)
		if err != nil {
			return err
		}
		stats.DistinctTags = n
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	s.logger.Info("export finished",
		"entries", stats.TotalEntries, "notes", stats.TotalNotes, "tags", stats.DistinctTags)
	return stats, nil
}

type pendingLine struct {
	num  int
	text []byte
}

// ImportFrom reads portable lines from r and applies them. Blank lines are
// skipped. A line that fails to parse or apply is reported in Errors and
// leaves no rows behind; the rest of the input is still processed. A line
// longer than MaxLineBytes is reported and ends the import, keeping what was
// applied before it.
func (s *Service) ImportFrom(ctx context.Context, r io.Reader) (*ImportResult, error) {
	res := &ImportResult{Errors: []LineError{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, s.opts.MaxLineBytes)), s.opts.MaxLineBytes)

	batch := make([]pendingLine, 0, s.opts.ImportBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.applyBatch(ctx, batch, res)
		batch = batch[:0]
		return err
	}

	num := 1
	for ; sc.Scan(); num++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		batch = append(batch, pendingLine{num: num, text: bytes.Clone(text)})
		if len(batch) >= s.opts.ImportBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	scanErr := sc.Err()
	if scanErr != nil && !errors.Is(scanErr, bufio.ErrTooLong) {
		return nil, fmt.Errorf("read import: %w", scanErr)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		s.recordFailure(res, num, fmt.Errorf("%w: line exceeds %d bytes, import stopped",
			storage.ErrInvalidInput, s.opts.MaxLineBytes))
	}

	s.logger.Info("import finished",
		"imported", res.Imported, "duplicates", res.Duplicates,
		"notes", res.NotesCreated, "tag_assignments", res.TagAssignments, "errors", len(res.Errors))
	return res, nil
}

// ImportFromPortableText is ImportFrom over an in-memory string.
func (s *Service) ImportFromPortableText(ctx context.Context, text string) (*ImportResult, error) {
	return s.ImportFrom(ctx, strings.NewReader(text))
}

// applyBatch writes one batch in a single transaction. Each record runs in
// its own savepoint; only storage faults abort the batch.
func (s *Service) applyBatch(ctx context.Context, batch []pendingLine, res *ImportResult) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, pl := range batch {
			rec, err := ParseLine(pl.text)
			if err != nil {
				s.recordFailure(res, pl.num, err)
				continue
			}

			var delta ImportResult
			err = storage.Savepoint(ctx, tx, "import_record", func() error {
				return applyRecord(ctx, tx, rec, &delta)
			})
			if err != nil {
				if !isRecordFault(err) {
					return fmt.Errorf("import line %d: %w", pl.num, err)
				}
				s.recordFailure(res, pl.num, err)
				continue
			}

			res.Imported += delta.Imported
			res.Duplicates += delta.Duplicates
			res.NotesCreated += delta.NotesCreated
			res.TagAssignments += delta.TagAssignments
		}
		s.logger.Debug("import batch committed", "lines", len(batch))
		return nil
	})
}

func (s *Service) recordFailure(res *ImportResult, line int, err error) {
	res.Errors = append(res.Errors, LineError{Line: line, Err: err})
	s.logger.Warn("import line rejected", "line", line, "error", err)
}

// isRecordFault reports whether err is about the record itself rather than
// the store.
func isRecordFault(err error) bool {
	return errors.Is(err, storage.ErrInvalidInput) || errors.Is(err, storage.ErrNotFound)
}

// applyRecord inserts one record and reattaches its annotations. The event
// is resolved by natural key whether or not it was just created. A blank
// note or tag name fails the whole record.
func applyRecord(ctx context.Context, q storage.DBTX, rec Record, delta *ImportResult) error {
	e, err := rec.Event()
	if err != nil {
		return err
	}

	history := storage.NewHistoryRepo(q)
	inserted, err := history.Insert(ctx, &e)
	if err != nil {
		return err
	}
	if inserted {
		delta.Imported++
	} else {
		delta.Duplicates++
	}

	stored, err := history.GetByNaturalKey(ctx, e.VideoID, e.WatchedAt)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("event %s at %s missing after insert", e.VideoID, storage.FormatWatchedAt(e.WatchedAt))
	}

	notes := storage.NewNoteRepo(q)
	for _, content := range rec.Notes {
		if _, err := notes.Add(ctx, stored.ID, content); err != nil {
			return err
		}
		delta.NotesCreated++
	}

	tags := storage.NewTagRepo(q)
	videoTags := storage.NewVideoTagRepo(q)
	for _, name := range rec.Tags {
		tag, _, err := tags.GetOrCreate(ctx, name, nil)
		if err != nil {
			return err
		}
		added, err := videoTags.Assign(ctx, stored.ID, tag.ID)
		if err != nil {
			return err
		}
		if added {
			delta.TagAssignments++
		}
	}
	return nil
}
