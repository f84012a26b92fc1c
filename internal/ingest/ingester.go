package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/runnerr0/watchvault/internal/storage"
)

// DefaultBatchSize is the number of records written per transaction.
const DefaultBatchSize = 500

// Options configures an Ingester.
type Options struct {
	TitlePrefix     string
	AdMarker        string
	ExcludeChannels []string
	BatchSize       int
}

// Result summarises one ingestion run. Error indexes refer to positions in
// the source input.
type Result struct {
	Parsed     int                   `json:"parsed"`
	Inserted   int                   `json:"inserted"`
	Duplicates int                   `json:"duplicates"`
	Skipped    int                   `json:"skipped"`
	Errors     []storage.RecordError `json:"errors"`
}

// Ingester feeds normalized records to the history repository and keeps
// the sync watermarks current.
type Ingester struct {
	history *storage.HistoryRepo
	meta    *storage.SyncMetaRepo
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an Ingester writing through db.
func New(db storage.DBTX, opts Options, logger *slog.Logger) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingester{
		history: storage.NewHistoryRepo(db),
		meta:    storage.NewSyncMetaRepo(db),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// ImportTakeout parses a Takeout watch-history.json stream and persists it.
// On success the last_takeout_import watermark is set to the current time.
func (in *Ingester) ImportTakeout(ctx context.Context, r io.Reader) (*Result, error) {
	events, positions, rejected, err := ParseTakeout(r, TakeoutOptions{
		TitlePrefix: in.opts.TitlePrefix,
		AdMarker:    in.opts.AdMarker,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Parsed: len(events) + len(rejected), Errors: rejected}
	for _, re := range rejected {
		in.logger.Warn("rejected takeout entry", "index", re.Index, "error", re.Err)
	}

	if err := in.persist(ctx, events, positions, res); err != nil {
		return nil, err
	}
	if err := in.meta.SetTime(ctx, storage.KeyLastBulkImport, in.now()); err != nil {
		return nil, err
	}

	in.logger.Info("takeout import finished",
		"parsed", res.Parsed, "inserted", res.Inserted, "duplicates", res.Duplicates,
		"skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

// ApplyScrape normalizes scrape-feed items and persists them. On success the
// last_incremental_sync watermark is advanced to the newest stored event.
func (in *Ingester) ApplyScrape(ctx context.Context, items []ScrapeItem) (*Result, error) {
	res := &Result{Parsed: len(items), Errors: []storage.RecordError{}}

	events := make([]storage.WatchEvent, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		e, err := FromScrape(item, in.opts.TitlePrefix)
		if err != nil {
			res.Errors = append(res.Errors, storage.RecordError{Index: i, VideoID: item.VideoID, Err: err})
			in.logger.Warn("rejected scrape item", "index", i, "error", err)
			continue
		}
		events = append(events, e)
		positions = append(positions, i)
	}

	if err := in.persist(ctx, events, positions, res); err != nil {
		return nil, err
	}

	latest, err := in.history.GetLatestWatchedAt(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if err := in.meta.SetTime(ctx, storage.KeyLastIncrementalSync, *latest); err != nil {
			return nil, err
		}
	}

	in.logger.Info("scrape sync finished",
		"items", res.Parsed, "inserted", res.Inserted, "duplicates", res.Duplicates,
		"skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

// Checkpoint returns the newest watchedAt in the store, the point an
// incremental scraper can stop at. It is nil on an empty store.
func (in *Ingester) Checkpoint(ctx context.Context) (*time.Time, error) {
	return in.history.GetLatestWatchedAt(ctx)
}

// persist drops excluded channels and bulk-inserts the rest in batches,
// one transaction per batch.
func (in *Ingester) persist(ctx context.Context, events []storage.WatchEvent, positions []int, res *Result) error {
	kept := events[:0]
	keptPos := positions[:0]
	for i, e := range events {
		if in.excluded(e.ChannelName) {
			res.Skipped++
			continue
		}
		kept = append(kept, e)
		keptPos = append(keptPos, positions[i])
	}

	for start := 0; start < len(kept); start += in.opts.BatchSize {
		end := min(start+in.opts.BatchSize, len(kept))

		br, err := in.history.BulkInsert(ctx, kept[start:end])
		if err != nil {
			return fmt.Errorf("insert batch at %d: %w", start, err)
		}

		res.Inserted += br.Inserted
		res.Duplicates += br.Duplicates
		for _, re := range br.Errors {
			re.Index = keptPos[start+re.Index]
			res.Errors = append(res.Errors, re)
			in.logger.Warn("rejected record", "index", re.Index, "video_id", re.VideoID, "error", re.Err)
		}
		in.logger.Debug("batch written", "from", start, "to", end,
			"inserted", br.Inserted, "duplicates", br.Duplicates)
	}
	return nil
}

func (in *Ingester) excluded(channel *string) bool {
	if channel == nil {
		return false
	}
	for _, c := range in.opts.ExcludeChannels {
		if strings.EqualFold(strings.TrimSpace(c), *channel) {
			return true
		}
	}
	return false
}
