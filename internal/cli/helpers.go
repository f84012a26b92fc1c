package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/config"
	"github.com/runnerr0/watchvault/internal/logger"
	"github.com/runnerr0/watchvault/internal/storage"
)

// session is everything a command needs once flags are parsed: the loaded
// config, an open store, a logger, and where to print.
type session struct {
	cfg    *config.Config
	db     *storage.DB
	logger *slog.Logger
	out    io.Writer
	in     io.Reader
	json   bool
}

// openSession loads config, builds the logger and opens the store.
func openSession(ctx context.Context, g *GlobalFlags) (*session, error) {
	if g == nil {
		g = &GlobalFlags{}
	}

	var (
		cfg *config.Config
		err error
	)
	if g.Config != "" {
		path, perr := config.ExpandPath(g.Config)
		if perr != nil {
			return nil, perr
		}
		cfg, err = config.LoadOrCreateAt(path)
	} else {
		cfg, err = config.LoadOrCreate()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := logger.ParseLevel(cfg.Logging.Level)
	if g.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Format: cfg.Logging.Format,
		Level:  level,
		Color:  logger.IsTerminal(os.Stderr),
	})

	dbPath := g.DB
	if dbPath == "" {
		if dbPath, err = cfg.DBPath(); err != nil {
			return nil, err
		}
	} else if dbPath, err = config.ExpandPath(dbPath); err != nil {
		return nil, err
	}

	db, err := storage.Open(ctx, dbPath,
		storage.WithLogger(log),
		storage.WithBusyTimeout(cfg.Storage.BusyTimeoutMS),
		storage.WithJournalMode(cfg.Storage.SQLiteJournalMode),
		storage.WithMkdirAll(),
	)
	if err != nil {
		return nil, err
	}
	log.Debug("store opened", "path", dbPath)

	return &session{
		cfg:    cfg,
		db:     db,
		logger: log,
		out:    os.Stdout,
		in:     os.Stdin,
		json:   g.JSON,
	}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

// withSession opens a session, runs fn and closes the store.
func withSession(g *GlobalFlags, fn func(ctx context.Context, s *session) error) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) println(args ...any) {
	fmt.Fprintln(s.out, args...)
}

// writeJSON prints v as indented JSON.
func (s *session) writeJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openInput returns stdin for "-" and the named file otherwise.
func (s *session) openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(s.in), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// parseDate accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}

// formatDurationHuman formats a duration into a human-readable string like "30 days".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

// plural picks the singular or plural word for n.
func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// count renders n with thousands separators and the right noun.
func count(n int64, one, many string) string {
	return humanize.Comma(n) + " " + plural(n, one, many)
}

func joinText(words []string) string {
	return strings.TrimSpace(strings.Join(words, " "))
}

// lookupTag resolves a tag by name, failing with a readable error.
func lookupTag(ctx context.Context, tags *storage.TagRepo, name string) (*storage.Tag, error) {
	t, err := tags.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("tag %q not found", storage.NormalizeTagName(name))
	}
	return t, nil
}
