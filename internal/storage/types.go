package storage

import "time"

// Source records which ingestion path produced a watch event.
type Source string

const (
	SourceBulkImport        Source = "takeout"
	SourceIncrementalScrape Source = "scrape"
)

// Valid reports whether s is a known provenance value.
func (s Source) Valid() bool {
	return s == SourceBulkImport || s == SourceIncrementalScrape
}

// WatchEvent is one observed viewing of one video at one instant.
// (VideoID, WatchedAt) is the natural key.
type WatchEvent struct {
	ID           int64     `json:"id"`
	VideoID      string    `json:"videoId" validate:"required,videoid"`
	Title        string    `json:"title" validate:"required"`
	URL          string    `json:"url" validate:"required,url"`
	ChannelName  *string   `json:"channelName"`
	ChannelURL   *string   `json:"channelUrl" validate:"omitempty,url"`
	ThumbnailURL string    `json:"thumbnailUrl" validate:"omitempty,url"`
	WatchedAt    time.Time `json:"watchedAt" validate:"required"`
	IsAd         bool      `json:"isAd"`
	Source       Source    `json:"source" validate:"required,oneof=takeout scrape"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Note is free-form text attached to exactly one watch event.
type Note struct {
	ID             int64     `json:"id"`
	WatchHistoryID int64     `json:"watchHistoryId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Tag is a global user-defined label.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// TagWithCount pairs a tag with the number of events carrying it.
type TagWithCount struct {
	Tag
	VideoCount int64 `json:"videoCount"`
}

// OrderField selects the sort column for history queries.
type OrderField string

const (
	OrderByWatchedAt   OrderField = "watchedAt"
	OrderByTitle       OrderField = "title"
	OrderByChannelName OrderField = "channelName"
)

// SortDir is the sort direction for history queries.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// TagLogic selects how a multi-tag filter combines.
type TagLogic string

const (
	TagLogicAnd TagLogic = "AND"
	TagLogicOr  TagLogic = "OR"
)

// QueryOptions defines filters, sort and pagination for history queries.
// The zero value returns the most recent events first, ads included.
type QueryOptions struct {
	Limit    int
	Offset   int
	OrderBy  OrderField
	OrderDir SortDir

	// Search matches a substring of title or channel name, ignoring ASCII case.
	Search string
	// DateFrom and DateTo are inclusive bounds on WatchedAt; zero means unbounded.
	DateFrom time.Time
	DateTo   time.Time
	// ExcludeAds drops events flagged as ads (includeAds=false).
	ExcludeAds bool

	TagIDs   []int64
	TagLogic TagLogic
}

// BulkResult summarises a BulkInsert call.
type BulkResult struct {
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Errors     []RecordError `json:"errors"`
}

// Stats holds aggregate statistics about the archive.
type Stats struct {
	TotalEvents   int64          `json:"totalEvents"`
	AdEvents      int64          `json:"adEvents"`
	TotalNotes    int64          `json:"totalNotes"`
	TotalTags     int64          `json:"totalTags"`
	OldestEvent   time.Time      `json:"oldestEvent"`
	NewestEvent   time.Time      `json:"newestEvent"`
	TopChannels   []ChannelCount `json:"topChannels"`
	SchemaVersion int            `json:"schemaVersion"`
}

// ChannelCount pairs a channel with its event count.
type ChannelCount struct {
	Channel string `json:"channel"`
	Count   int64  `json:"count"`
}
