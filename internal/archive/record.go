// Package archive converts the whole store to and from the portable format:
// one JSON object per line, each line independently parseable, so files can
// be appended to and streamed.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Record is one line of the portable format. Notes and tags are carried by
// content and name only; ids and colors are not portable.
type Record struct {
	VideoID      string         `json:"videoId"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	ChannelName  *string        `json:"channelName"`
	ChannelURL   *string        `json:"channelUrl"`
	ThumbnailURL string         `json:"thumbnailUrl"`
	WatchedAt    string         `json:"watchedAt"`
	IsAd         bool           `json:"isAd"`
	Source       storage.Source `json:"source"`
	Notes        []string       `json:"notes"`
	Tags         []string       `json:"tags"`
}

// NewRecord builds the portable form of e with its annotations.
func NewRecord(e storage.WatchEvent, notes, tags []string) Record {
	if notes == nil {
		notes = []string{}
	}
	if tags == nil {
		tags = []string{}
	}
	return Record{
		VideoID:      e.VideoID,
		Title:        e.Title,
		URL:          e.URL,
		ChannelName:  e.ChannelName,
		ChannelURL:   e.ChannelURL,
		ThumbnailURL: e.ThumbnailURL,
		WatchedAt:    storage.FormatWatchedAt(e.WatchedAt),
		IsAd:         e.IsAd,
		Source:       e.Source,
		Notes:        notes,
		Tags:         tags,
	}
}

// Event converts r back into an insertable watch event.
func (r Record) Event() (storage.WatchEvent, error) {
	watchedAt, err := storage.ParseWatchedAt(r.WatchedAt)
	if err != nil {
		return storage.WatchEvent{}, fmt.Errorf("%w: bad watchedAt %q", storage.ErrInvalidInput, r.WatchedAt)
	}
	return storage.WatchEvent{
		VideoID:      r.VideoID,
		Title:        r.Title,
		URL:          r.URL,
		ChannelName:  r.ChannelName,
		ChannelURL:   r.ChannelURL,
		ThumbnailURL: r.ThumbnailURL,
		WatchedAt:    watchedAt,
		IsAd:         r.IsAd,
		Source:       r.Source,
	}, nil
}

// MarshalLine encodes r as a single line without the trailing newline.
// HTML escaping is off so titles stay readable.
func (r Record) MarshalLine() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseLine decodes one portable line. Unknown fields are rejected so a
// file in some other format fails loudly instead of importing empty rows.
func ParseLine(line []byte) (Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("%w: trailing data after record", storage.ErrInvalidInput)
	}
	return r, nil
}

// LineError reports a portable line that could not be imported. Line is
// 1-based.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// MarshalJSON renders the error for --json output.
func (e LineError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Line  int    `json:"line"`
		Error string `json:"error"`
	}{e.Line, e.Err.Error()})
}

// Stats summarises an export.
type Stats struct {
	TotalEntries     int   `json:"totalEntries"`
	EntriesWithNotes int   `json:"entriesWithNotes"`
	EntriesWithTags  int   `json:"entriesWithTags"`
	TotalNotes       int   `json:"totalNotes"`
	DistinctTags     int64 `json:"distinctTags"`
}

// Export is the in-memory form of a full export.
type Export struct {
	Entries    []Record  `json:"entries"`
	Stats      Stats     `json:"stats"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ImportResult summarises an import. Errors are per line.
type ImportResult struct {
	Imported       int         `json:"imported"`
	Duplicates     int         `json:"duplicates"`
	NotesCreated   int         `json:"notesCreated"`
	TagAssignments int         `json:"tagAssignments"`
	Errors         []LineError `json:"errors"`
}
