package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/watchvault/internal/config"
	"github.com/runnerr0/watchvault/internal/logger"
	"github.com/runnerr0/watchvault/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// testSession is a session over a fresh store in t.TempDir with default
// config. Output is collected in the returned buffer.
func testSession(t *testing.T, jsonOut bool) (*session, *bytes.Buffer) {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	return &session{
		cfg:    config.DefaultConfig(),
		db:     db,
		logger: logger.Discard(),
		out:    &out,
		in:     strings.NewReader(""),
		json:   jsonOut,
	}, &out
}

func ptr(s string) *string { return &s }

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seedEvent inserts a minimal event and returns its id.
func seedEvent(t *testing.T, s *session, videoID, title string, channel *string, at time.Time) int64 {
	t.Helper()
	e := storage.WatchEvent{
		VideoID:     videoID,
		Title:       title,
		URL:         "https://www.youtube.com/watch?v=" + videoID,
		ChannelName: channel,
		WatchedAt:   at,
		Source:      storage.SourceBulkImport,
	}
	ok, err := storage.NewHistoryRepo(s.db).Insert(context.Background(), &e)
	require.NoError(t, err)
	require.True(t, ok)
	return e.ID
}

// videoIDFor returns a valid, distinct video id for n.
func videoIDFor(n int) string {
	return fmt.Sprintf("vid%08d", n)
}
