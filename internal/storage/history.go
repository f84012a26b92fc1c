package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultQueryLimit is applied when QueryOptions.Limit is not positive.
const DefaultQueryLimit = 50

// historyColumns must match the scan order in scanWatchEvent.
const historyColumns = `id, video_id, title, url, channel_name, channel_url, thumbnail_url,
	watched_at, is_ad, source, created_at, updated_at`

const insertEventSQL = `
	INSERT INTO watch_history (video_id, title, url, channel_name, channel_url, thumbnail_url, watched_at, is_ad, source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id, watched_at) DO NOTHING`

// orderColumns whitelists sortable columns; values are trusted SQL.
var orderColumns = map[OrderField]string{
	OrderByWatchedAt:   "watched_at",
	OrderByTitle:       "title COLLATE NOCASE",
	OrderByChannelName: "channel_name COLLATE NOCASE",
}

// HistoryRepo is the watch-event repository. It owns deduplication and the
// filter/sort/paginate query engine.
type HistoryRepo struct {
	db DBTX
}

// NewHistoryRepo returns a repository over db, which may be a *DB or a *sql.Tx.
func NewHistoryRepo(db DBTX) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func scanWatchEvent(scanner interface{ Scan(dest ...any) error }) (*WatchEvent, error) {
	var (
		e                       WatchEvent
		channelName, channelURL sql.NullString
		watchedAt, source       string
		createdAt, updatedAt    string
	)

	if err := scanner.Scan(
		&e.ID, &e.VideoID, &e.Title, &e.URL, &channelName, &channelURL, &e.ThumbnailURL,
		&watchedAt, &e.IsAd, &source, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.WatchedAt, err = ParseWatchedAt(watchedAt); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = parseTimestamp(createdAt)
	e.UpdatedAt, _ = parseTimestamp(updatedAt)
	e.ChannelName = stringPtr(channelName)
	e.ChannelURL = stringPtr(channelURL)
	e.Source = Source(source)

	return &e, nil
}

// Insert persists one record if its natural key is absent. It returns false
// without error when (VideoID, WatchedAt) already exists. On insert, e.ID is set.
func (r *HistoryRepo) Insert(ctx context.Context, e *WatchEvent) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	return insertEvent(ctx, r.db, e)
}

// insertEvent relies on ON CONFLICT DO NOTHING so two racing writers
// cannot both create the same natural key.
func insertEvent(ctx context.Context, q DBTX, e *WatchEvent) (bool, error) {
	e.WatchedAt = e.WatchedAt.UTC().Truncate(time.Millisecond)

	res, err := q.ExecContext(ctx, insertEventSQL,
		e.VideoID, e.Title, e.URL, nullString(e.ChannelName), nullString(e.ChannelURL),
		e.ThumbnailURL, FormatWatchedAt(e.WatchedAt), e.IsAd, string(e.Source),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return false, fmt.Errorf("%w: insert watch event: %v", ErrInvalidInput, err)
		}
		return false, fmt.Errorf("insert watch event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if e.ID, err = res.LastInsertId(); err != nil {
		return true, err
	}
	return true, nil
}

// BulkInsert persists records inside one transaction. Duplicates are counted,
// and records that fail validation or a constraint are captured in Errors
// while the remaining records are still processed. Any other failure aborts
// the whole batch.
func (r *HistoryRepo) BulkInsert(ctx context.Context, records []WatchEvent) (*BulkResult, error) {
	result := &BulkResult{Errors: []RecordError{}}

	err := withTx(ctx, r.db, func(q DBTX) error {
		for i := range records {
			rec := &records[i]

			if err := rec.Validate(); err != nil {
				result.Errors = append(result.Errors, RecordError{Index: i, VideoID: rec.VideoID, Err: err})
				continue
			}

			inserted, err := insertEvent(ctx, q, rec)
			if err != nil {
				if !errors.Is(err, ErrInvalidInput) {
					return fmt.Errorf("record %d: %w", i, err)
				}
				result.Errors = append(result.Errors, RecordError{Index: i, VideoID: rec.VideoID, Err: err})
				continue
			}
			if inserted {
				result.Inserted++
			} else {
				result.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Get retrieves a single event by id. It returns nil when no row matches.
func (r *HistoryRepo) Get(ctx context.Context, id int64) (*WatchEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM watch_history WHERE id = ?`, id)

	e, err := scanWatchEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watch event: %w", err)
	}
	return e, nil
}

// GetByNaturalKey retrieves the event for (videoID, watchedAt). It returns
// nil when no row matches.
func (r *HistoryRepo) GetByNaturalKey(ctx context.Context, videoID string, watchedAt time.Time) (*WatchEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM watch_history WHERE video_id = ? AND watched_at = ?`,
		videoID, FormatWatchedAt(watchedAt))

	e, err := scanWatchEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watch event by key: %w", err)
	}
	return e, nil
}

// filter is the WHERE clause shared by Query and Count.
type filter struct {
	clauses []string
	args    []any

	// tagSQL is a subquery yielding matching watch_history ids, or empty.
	tagSQL  string
	tagArgs []any
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

func buildFilter(opts QueryOptions) (*filter, error) {
	f := &filter{}

	if s := strings.TrimSpace(opts.Search); s != "" {
		pattern := "%" + escapeLike(FoldText(s)) + "%"
		f.clauses = append(f.clauses,
			`(casefold(title) LIKE ? ESCAPE '\' OR casefold(COALESCE(channel_name, '')) LIKE ? ESCAPE '\')`)
		f.args = append(f.args, pattern, pattern)
	}
	if !opts.DateFrom.IsZero() {
		f.clauses = append(f.clauses, "watched_at >= ?")
		f.args = append(f.args, FormatWatchedAt(opts.DateFrom))
	}
	if !opts.DateTo.IsZero() {
		f.clauses = append(f.clauses, "watched_at <= ?")
		f.args = append(f.args, FormatWatchedAt(opts.DateTo))
	}
	if opts.ExcludeAds {
		f.clauses = append(f.clauses, "is_ad = 0")
	}

	if tagIDs := uniqueIDs(opts.TagIDs); len(tagIDs) > 0 {
		logic := opts.TagLogic
		if logic == "" {
			logic = TagLogicOr
		}

		sub := `SELECT watch_history_id FROM video_tags WHERE tag_id IN (` + placeholders(len(tagIDs)) + `)`
		args := int64Args(tagIDs)

		switch logic {
		case TagLogicOr:
		case TagLogicAnd:
			sub += ` GROUP BY watch_history_id HAVING COUNT(DISTINCT tag_id) = ?`
			args = append(args, len(tagIDs))
		default:
			return nil, fmt.Errorf("%w: unknown tag logic %q", ErrInvalidInput, opts.TagLogic)
		}

		f.tagSQL = sub
		f.tagArgs = args
		f.clauses = append(f.clauses, "id IN ("+sub+")")
		f.args = append(f.args, args...)
	}

	return f, nil
}

// tagFilterEmpty reports whether the tag filter matches no event at all,
// letting callers skip the main query.
func (r *HistoryRepo) tagFilterEmpty(ctx context.Context, f *filter) (bool, error) {
	if f.tagSQL == "" {
		return false, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (`+f.tagSQL+`)`, f.tagArgs...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check tag filter: %w", err)
	}
	return !exists, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func orderClause(opts QueryOptions) (string, error) {
	field := opts.OrderBy
	if field == "" {
		field = OrderByWatchedAt
	}
	col, ok := orderColumns[field]
	if !ok {
		return "", fmt.Errorf("%w: unknown order field %q", ErrInvalidInput, opts.OrderBy)
	}

	dir := opts.OrderDir
	if dir == "" {
		dir = SortDesc
	}
	var sqlDir string
	switch dir {
	case SortAsc:
		sqlDir = "ASC"
	case SortDesc:
		sqlDir = "DESC"
	default:
		return "", fmt.Errorf("%w: unknown sort direction %q", ErrInvalidInput, opts.OrderDir)
	}

	return " ORDER BY " + col + " " + sqlDir + ", id " + sqlDir, nil
}

// Query returns the events matching opts in the requested order. The default
// order is watchedAt descending.
func (r *HistoryRepo) Query(ctx context.Context, opts QueryOptions) ([]WatchEvent, error) {
	f, err := buildFilter(opts)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(opts)
	if err != nil {
		return nil, err
	}

	if empty, err := r.tagFilterEmpty(ctx, f); err != nil || empty {
		return []WatchEvent{}, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + historyColumns + ` FROM watch_history` + f.where() + order + ` LIMIT ? OFFSET ?`
	args := append(f.args, limit, offset)

	return r.scanEvents(ctx, query, args...)
}

// Count returns how many events match the filters in opts, ignoring
// pagination and sort. It uses the same matching logic as Query.
func (r *HistoryRepo) Count(ctx context.Context, opts QueryOptions) (int64, error) {
	f, err := buildFilter(opts)
	if err != nil {
		return 0, err
	}

	if empty, err := r.tagFilterEmpty(ctx, f); err != nil || empty {
		return 0, err
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_history`+f.where(), f.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count watch events: %w", err)
	}
	return n, nil
}

// scanEvents executes a query and scans results into a WatchEvent slice.
func (r *HistoryRepo) scanEvents(ctx context.Context, query string, args ...any) ([]WatchEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query watch events: %w", err)
	}
	defer rows.Close()

	events := []WatchEvent{}
	for rows.Next() {
		e, err := scanWatchEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watch event: %w", err)
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

// GetLatestWatchedAt returns the most recent WatchedAt, or nil on an empty store.
func (r *HistoryRepo) GetLatestWatchedAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(watched_at) FROM watch_history`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest watched_at: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}

	t, err := ParseWatchedAt(latest.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes an event by id. Notes and tag associations are
// cascade-deleted by the schema. It returns false if no row existed.
func (r *HistoryRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watch_history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete watch event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteBefore removes events watched strictly before t.
func (r *HistoryRepo) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watch_history WHERE watched_at < ?`, FormatWatchedAt(t))
	if err != nil {
		return 0, fmt.Errorf("prune watch events: %w", err)
	}
	return res.RowsAffected()
}

// CountBefore returns how many events DeleteBefore(t) would remove.
func (r *HistoryRepo) CountBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watch_history WHERE watched_at < ?`, FormatWatchedAt(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count watch events before: %w", err)
	}
	return n, nil
}

// DeleteAll removes every event and, by cascade, every note and association.
// Tags survive.
func (r *HistoryRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watch_history`)
	if err != nil {
		return 0, fmt.Errorf("purge watch events: %w", err)
	}
	return res.RowsAffected()
}
