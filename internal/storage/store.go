package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// driverName is go-sqlite3 with a casefold(text) SQL function registered on
// every connection, used for case-insensitive search beyond ASCII.
const driverName = "sqlite3_watchvault"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", FoldText, true)
		},
	})
}

// FoldText returns s in NFC with Unicode case folding applied.
func FoldText(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// DBTX is the query surface shared by *DB and *sql.Tx. Repositories accept
// either, so the same repository code runs inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the explicitly constructed store handle. It owns the single sqlite
// connection used by every repository in the process.
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
}

type options struct {
	logger        *slog.Logger
	busyTimeoutMS int
	journalMode   string
	mkdirAll      bool
}

// Option customises Open.
type Option func(*options)

// WithLogger sets the logger used by the store and its migrations.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithBusyTimeout sets the sqlite busy timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMS = ms } }

// WithJournalMode sets the sqlite journal mode. Default: WAL.
func WithJournalMode(mode string) Option { return func(o *options) { o.journalMode = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// Open opens (or creates) the sqlite database at path, enables foreign keys
// and the configured journal mode, and applies pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := options{
		busyTimeoutMS: 5000,
		journalMode:   "WAL",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.mkdirAll {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", strings.ToUpper(o.journalMode))
	q.Set("_busy_timeout", fmt.Sprint(o.busyTimeoutMS))
	q.Set("_txlock", "immediate")

	sqlDB, err := sql.Open(driverName, "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: the store is single-writer and pragmas are per connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: o.logger}

	if err := NewMigrationRunner(db, o.logger).Run(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Logger returns the store logger.
func (d *DB) Logger() *slog.Logger { return d.logger }

// InTx runs fn inside a single transaction, committing if fn returns nil.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ReadSnapshot runs fn inside a deferred read transaction on one pinned
// connection. It takes no write lock, so writers on other connections are
// not blocked while fn sees a consistent view. fn must only read.
func (d *DB) ReadSnapshot(ctx context.Context, fn func(q DBTX) error) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	if err := fn(snapshotConn{conn}); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return fmt.Errorf("end read: %w", err)
	}
	return nil
}

// snapshotConn exposes only the query surface of a pinned connection, so
// withTx runs on it directly instead of nesting a BEGIN.
type snapshotConn struct{ conn *sql.Conn }

func (s snapshotConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

func (s snapshotConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

func (s snapshotConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

// SizeBytes returns the on-disk size of the database, falling back to
// page_count * page_size when the file cannot be stat'ed.
func (d *DB) SizeBytes(ctx context.Context) int64 {
	if info, err := os.Stat(d.path); err == nil {
		return info.Size()
	}

	var pageCount, pageSize int64
	if err := d.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := d.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// withTx runs fn in a transaction. If q is already a transaction, fn joins it.
func withTx(ctx context.Context, q DBTX, fn func(DBTX) error) error {
	if tx, ok := q.(*sql.Tx); ok {
		return fn(tx)
	}
	b, ok := q.(txBeginner)
	if !ok {
		return fn(q)
	}

	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Savepoint runs fn inside a named savepoint on q. If fn fails, everything
// it wrote is rolled back while the enclosing transaction stays usable.
func Savepoint(ctx context.Context, q DBTX, name string, fn func() error) error {
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fmt.Errorf("rollback to %s: %w (after %v)", name, rbErr, err)
		}
		if _, relErr := q.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return fmt.Errorf("release %s: %w (after %v)", name, relErr, err)
		}
		return err
	}

	if _, err := q.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// watchedAtLayout is fixed-width so lexicographic order equals time order.
const watchedAtLayout = "2006-01-02T15:04:05.000Z"

// sqlNow is the SQL expression used for bookkeeping timestamps.
const sqlNow = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// FormatWatchedAt renders t in the canonical stored form, truncated to milliseconds.
func FormatWatchedAt(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(watchedAtLayout)
}

// ParseWatchedAt parses an ISO-8601 instant.
func ParseWatchedAt(s string) (time.Time, error) {
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		watchedAtLayout,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// nullString returns a sql.NullString from a *string.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr returns a *string from a sql.NullString.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64Args converts ids into query arguments.
func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// uniqueIDs drops duplicates while keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
