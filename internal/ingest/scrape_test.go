package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/watchvault/internal/storage"
)

func TestFromScrape(t *testing.T) {
	channel := "  Anthropic "
	item := ScrapeItem{
		VideoID:     "zrcCS9oHjtI",
		Title:       "Watched Claude Code on desktop",
		URL:         "https://www.youtube.com/watch?v=zrcCS9oHjtI&t=3s",
		ChannelName: &channel,
		WatchedAt:   time.Date(2026, 1, 31, 2, 4, 56, 748900000, time.UTC),
	}

	e, err := FromScrape(item, "Watched ")
	require.NoError(t, err)
	assert.Equal(t, "zrcCS9oHjtI", e.VideoID)
	assert.Equal(t, "Claude Code on desktop", e.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=zrcCS9oHjtI", e.URL)
	assert.Equal(t, "https://i.ytimg.com/vi/zrcCS9oHjtI/hqdefault.jpg", e.ThumbnailURL)
	assert.Equal(t, "Anthropic", *e.ChannelName)
	assert.Equal(t, storage.SourceIncrementalScrape, e.Source)
	assert.Equal(t, "2026-01-31T02:04:56.748Z", storage.FormatWatchedAt(e.WatchedAt))
}

func TestFromScrape_IDFromURL(t *testing.T) {
	e, err := FromScrape(ScrapeItem{
		Title:        "A short",
		URL:          "https://www.youtube.com/shorts/abc-DEF_123",
		ThumbnailURL: "https://i.ytimg.com/vi/abc-DEF_123/maxres.jpg",
		WatchedAt:    time.Now(),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "abc-DEF_123", e.VideoID)
	assert.Equal(t, "https://i.ytimg.com/vi/abc-DEF_123/maxres.jpg", e.ThumbnailURL)
}

func TestFromScrape_Rejects(t *testing.T) {
	valid := ScrapeItem{
		Title:     "ok",
		URL:       "https://youtu.be/dQw4w9WgXcQ",
		WatchedAt: time.Now(),
	}

	tests := []struct {
		name   string
		mutate func(*ScrapeItem)
		target error
	}{
		{"missing url", func(i *ScrapeItem) { i.URL = "" }, storage.ErrInvalidInput},
		{"missing title", func(i *ScrapeItem) { i.Title = "" }, storage.ErrInvalidInput},
		{"missing time", func(i *ScrapeItem) { i.WatchedAt = time.Time{} }, storage.ErrInvalidInput},
		{"bad video id", func(i *ScrapeItem) { i.VideoID = "short" }, storage.ErrInvalidInput},
		{"url without id", func(i *ScrapeItem) { i.URL = "https://www.youtube.com/feed/history" }, ErrNoVideoID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid
			tt.mutate(&item)
			_, err := FromScrape(item, "")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDecodeScrapeFeed(t *testing.T) {
	items, err := DecodeScrapeFeed(strings.NewReader(`[
		{"videoId": "dQw4w9WgXcQ", "title": "t", "url": "https://youtu.be/dQw4w9WgXcQ",
		 "channelName": null, "watchedAt": "2026-02-01T10:00:00Z", "isAd": true}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dQw4w9WgXcQ", items[0].VideoID)
	assert.Nil(t, items[0].ChannelName)
	assert.True(t, items[0].IsAd)

	_, err = DecodeScrapeFeed(strings.NewReader(`not json`))
	assert.Error(t, err)
}
