package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/runnerr0/watchvault/internal/storage"
)

// ScrapeItem is one record from the incremental browser-scrape feed.
// VideoID may be omitted when URL carries it.
type ScrapeItem struct {
	VideoID      string    `json:"videoId" validate:"omitempty,videoid"`
	Title        string    `json:"title" validate:"required"`
	URL          string    `json:"url" validate:"required,url"`
	ChannelName  *string   `json:"channelName"`
	ChannelURL   *string   `json:"channelUrl" validate:"omitempty,url"`
	ThumbnailURL string    `json:"thumbnailUrl" validate:"omitempty,url"`
	WatchedAt    time.Time `json:"watchedAt"`
	IsAd         bool      `json:"isAd"`
}

// DecodeScrapeFeed reads a JSON array of scrape items.
func DecodeScrapeFeed(r io.Reader) ([]ScrapeItem, error) {
	var items []ScrapeItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode scrape feed: %w", err)
	}
	return items, nil
}

// FromScrape validates a scrape item and normalizes it into a watch event.
// The title loses titlePrefix if present; a missing video id is extracted
// from the URL and a missing thumbnail is derived from the id.
func FromScrape(item ScrapeItem, titlePrefix string) (storage.WatchEvent, error) {
	if item.WatchedAt.IsZero() {
		return storage.WatchEvent{}, fmt.Errorf("%w: watchedAt is required", storage.ErrInvalidInput)
	}
	if err := storage.ValidateStruct(item); err != nil {
		return storage.WatchEvent{}, err
	}

	id := item.VideoID
	if id == "" {
		var err error
		if id, err = ExtractVideoID(item.URL); err != nil {
			return storage.WatchEvent{}, err
		}
	}

	thumb := strings.TrimSpace(item.ThumbnailURL)
	if thumb == "" {
		thumb = ThumbnailURL(id)
	}

	e := storage.WatchEvent{
		VideoID:      id,
		Title:        NormalizeTitle(item.Title, titlePrefix),
		URL:          WatchURL(id),
		ChannelName:  normalizeOptional(item.ChannelName),
		ChannelURL:   normalizeOptional(item.ChannelURL),
		ThumbnailURL: thumb,
		WatchedAt:    item.WatchedAt.UTC().Truncate(time.Millisecond),
		IsAd:         item.IsAd,
		Source:       storage.SourceIncrementalScrape,
	}
	if e.Title == "" {
		e.Title = id
	}
	return e, nil
}
