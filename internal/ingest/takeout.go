package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/runnerr0/watchvault/internal/storage"
)

// TakeoutEntry is one element of a Takeout watch-history.json array.
type TakeoutEntry struct {
	Header    string `json:"header"`
	Title     string `json:"title"`
	TitleURL  string `json:"titleUrl"`
	Subtitles []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"subtitles"`
	Time    string `json:"time"`
	Details []struct {
		Name string `json:"name"`
	} `json:"details"`
}

// TakeoutOptions controls how Takeout entries are normalized.
type TakeoutOptions struct {
	// TitlePrefix is the leading marker Takeout puts on every title.
	TitlePrefix string
	// AdMarker is the details name that flags an entry as an ad.
	AdMarker string
}

// ParseTakeout streams a Takeout watch-history.json array from r. Entries
// that cannot become a valid event are returned as RecordErrors indexed by
// their position in the array; the rest come back normalized and ready for
// BulkInsert. positions[i] is the array index of events[i].
func ParseTakeout(r io.Reader, opts TakeoutOptions) (events []storage.WatchEvent, positions []int, rejected []storage.RecordError, err error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read takeout: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, nil, nil, errors.New("read takeout: expected a JSON array")
	}

	events = []storage.WatchEvent{}
	rejected = []storage.RecordError{}

	for i := 0; dec.More(); i++ {
		// Each element is read whole first so a badly typed field rejects
		// only its own entry and the stream stays aligned.
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, nil, fmt.Errorf("read takeout entry %d: %w", i, err)
		}

		var entry TakeoutEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			rejected = append(rejected, storage.RecordError{
				Index: i,
				Err:   fmt.Errorf("%w: malformed entry: %v", storage.ErrInvalidInput, err),
			})
			continue
		}

		e, err := entry.toEvent(opts)
		if err != nil {
			rejected = append(rejected, storage.RecordError{Index: i, Err: err})
			continue
		}
		events = append(events, e)
		positions = append(positions, i)
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, nil, fmt.Errorf("read takeout: %w", err)
	}
	return events, positions, rejected, nil
}

func (t TakeoutEntry) toEvent(opts TakeoutOptions) (storage.WatchEvent, error) {
	if t.TitleURL == "" {
		return storage.WatchEvent{}, fmt.Errorf("%w: entry has no video url (%q)", storage.ErrInvalidInput, t.Title)
	}
	id, err := ExtractVideoID(t.TitleURL)
	if err != nil {
		return storage.WatchEvent{}, err
	}

	watchedAt, err := storage.ParseWatchedAt(t.Time)
	if err != nil {
		return storage.WatchEvent{}, fmt.Errorf("%w: bad time %q", storage.ErrInvalidInput, t.Time)
	}

	e := storage.WatchEvent{
		VideoID:      id,
		Title:        NormalizeTitle(t.Title, opts.TitlePrefix),
		URL:          WatchURL(id),
		ThumbnailURL: ThumbnailURL(id),
		WatchedAt:    watchedAt,
		IsAd:         t.isAd(opts.AdMarker),
		Source:       storage.SourceBulkImport,
	}
	if len(t.Subtitles) > 0 {
		e.ChannelName = normalizeOptional(&t.Subtitles[0].Name)
		e.ChannelURL = normalizeOptional(&t.Subtitles[0].URL)
	}
	if e.Title == "" {
		e.Title = id
	}
	return e, nil
}

func (t TakeoutEntry) isAd(marker string) bool {
	if marker == "" {
		return false
	}
	for _, d := range t.Details {
		if strings.EqualFold(strings.TrimSpace(d.Name), marker) {
			return true
		}
	}
	return false
}
