package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_GetRoundtrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	e := testEvent("dQw4w9WgXcQ", 0)
	e.ChannelName = ptr("Rick Astley")
	e.ChannelURL = ptr("https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw")
	e.WatchedAt = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

	inserted, err := repo.Insert(ctx, &e)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Positive(t, e.ID)

	got, err := repo.Get(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dQw4w9WgXcQ", got.VideoID)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.URL, got.URL)
	assert.Equal(t, "Rick Astley", *got.ChannelName)
	assert.Equal(t, *e.ChannelURL, *got.ChannelURL)
	assert.Equal(t, e.ThumbnailURL, got.ThumbnailURL)
	assert.Equal(t, SourceBulkImport, got.Source)
	assert.False(t, got.IsAd)
	assert.True(t, got.WatchedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 123000000, time.UTC)),
		"watchedAt is stored at millisecond precision")
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsert_NullableChannel(t *testing.T) {
	db := openTestDB(t)
	id := seedEvent(t, db, testEvent(videoID(1), 0))

	got, err := NewHistoryRepo(db).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got.ChannelName)
	assert.Nil(t, got.ChannelURL)
}

func TestInsert_DuplicateNaturalKey(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	first := testEvent(videoID(1), 0)
	inserted, err := repo.Insert(ctx, &first)
	require.NoError(t, err)
	require.True(t, inserted)

	again := testEvent(videoID(1), 0)
	again.Title = "Different title"
	inserted, err = repo.Insert(ctx, &again)
	require.NoError(t, err, "a duplicate is not an error")
	assert.False(t, inserted)
	assert.Zero(t, again.ID)

	later := testEvent(videoID(1), time.Minute)
	inserted, err = repo.Insert(ctx, &later)
	require.NoError(t, err)
	assert.True(t, inserted, "same video at a different instant is a new event")

	n, err := repo.Count(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.GetByNaturalKey(ctx, videoID(1), baseTime)
	require.NoError(t, err)
	assert.Equal(t, first.Title, got.Title, "the original row is untouched")
}

func TestInsert_Validation(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(e *WatchEvent)
	}{
		{"missing url", func(e *WatchEvent) { e.URL = "" }},
		{"bad url", func(e *WatchEvent) { e.URL = "not a url" }},
		{"short video id", func(e *WatchEvent) { e.VideoID = "abc" }},
		{"missing title", func(e *WatchEvent) { e.Title = "" }},
		{"zero watchedAt", func(e *WatchEvent) { e.WatchedAt = time.Time{} }},
		{"unknown source", func(e *WatchEvent) { e.Source = "rss" }},
		{"bad channel url", func(e *WatchEvent) { e.ChannelURL = ptr("::") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testEvent(videoID(1), 0)
			tc.mutate(&e)

			inserted, err := repo.Insert(ctx, &e)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.False(t, inserted)
		})
	}

	n, err := repo.Count(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, n, "rejected records are never persisted")
}

func TestBulkInsert_WithOneDuplicate(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)

	a := testEvent(videoID(1), 0)
	b := testEvent(videoID(2), 0)

	res, err := repo.BulkInsert(context.Background(), []WatchEvent{a, a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Errors)
}

func TestBulkInsert_BadRecordDoesNotAbortBatch(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	bad := testEvent(videoID(2), 0)
	bad.URL = ""

	res, err := repo.BulkInsert(ctx, []WatchEvent{
		testEvent(videoID(1), 0),
		bad,
		testEvent(videoID(3), 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Zero(t, res.Duplicates)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, videoID(2), res.Errors[0].VideoID)
	assert.ErrorIs(t, res.Errors[0], ErrInvalidInput)

	got, err := repo.GetByNaturalKey(ctx, videoID(2), baseTime)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBulkInsert_ConstraintFailureIsPerRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		CREATE TRIGGER block_video BEFORE INSERT ON watch_history
		WHEN NEW.video_id = '`+videoID(2)+`'
		BEGIN SELECT RAISE(ABORT, 'blocked'); END`)
	require.NoError(t, err)

	res, err := NewHistoryRepo(db).BulkInsert(ctx, []WatchEvent{
		testEvent(videoID(1), 0),
		testEvent(videoID(2), 0),
		testEvent(videoID(3), 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.ErrorIs(t, res.Errors[0], ErrInvalidInput)
}

func TestBulkInsert_StoreFaultAbortsBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"video_tags", "notes", "watch_history"} {
		_, err := db.ExecContext(ctx, "DROP TABLE "+table)
		require.NoError(t, err)
	}

	res, err := NewHistoryRepo(db).BulkInsert(ctx, []WatchEvent{
		testEvent(videoID(1), 0),
		testEvent(videoID(2), 0),
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "no such table")
}

func TestBulkInsert_Empty(t *testing.T) {
	db := openTestDB(t)

	res, err := NewHistoryRepo(db).BulkInsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, &BulkResult{Errors: []RecordError{}}, res)
}

func TestGet_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetByNaturalKey(ctx, videoID(1), baseTime)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuery_DefaultOrderIsMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		seedEvent(t, db, testEvent(videoID(i), time.Duration(i)*time.Hour))
	}

	events, err := NewHistoryRepo(db).Query(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, videoID(2), events[0].VideoID)
	assert.Equal(t, videoID(1), events[1].VideoID)
	assert.Equal(t, videoID(0), events[2].VideoID)
}

func TestQuery_DateRangeInclusive(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for i, hour := range []int{10, 12, 14} {
		e := testEvent(videoID(i), 0)
		e.WatchedAt = day.Add(time.Duration(hour) * time.Hour)
		seedEvent(t, db, e)
	}

	events, err := repo.Query(ctx, QueryOptions{
		DateFrom: day.Add(11 * time.Hour),
		DateTo:   day.Add(13 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, videoID(1), events[0].VideoID)

	// Bounds are inclusive.
	events, err = repo.Query(ctx, QueryOptions{
		DateFrom: day.Add(10 * time.Hour),
		DateTo:   day.Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestQuery_SearchTitleOrChannel(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	a := testEvent(videoID(1), 0)
	a.Title = "Learning GOLANG generics"
	b := testEvent(videoID(2), time.Hour)
	b.Title = "Cooking pasta"
	b.ChannelName = ptr("The Golang Kitchen")
	c := testEvent(videoID(3), 2*time.Hour)
	c.Title = "Rust ownership"
	seedEvent(t, db, a)
	seedEvent(t, db, b)
	seedEvent(t, db, c)

	events, err := repo.Query(ctx, QueryOptions{Search: "golang"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, videoID(2), events[0].VideoID)
	assert.Equal(t, videoID(1), events[1].VideoID)
}

func TestQuery_SearchFoldsUnicodeCase(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	a := testEvent(videoID(1), 0)
	a.Title = "Émission spéciale ÜBER"
	b := testEvent(videoID(2), time.Hour)
	b.ChannelName = ptr("Straße Kanal")
	seedEvent(t, db, a)
	seedEvent(t, db, b)

	for q, want := range map[string]int64{
		"émission": 1,
		"über":     1,
		"SPÉCIALE": 1,
		"STRASSE":  1,
		"straße":   1,
		"zebra":    0,
	} {
		n, err := repo.Count(ctx, QueryOptions{Search: q})
		require.NoError(t, err)
		assert.Equal(t, want, n, q)
	}
}

func TestQuery_SearchEscapesWildcards(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)

	a := testEvent(videoID(1), 0)
	a.Title = "100% pure"
	b := testEvent(videoID(2), 0)
	b.Title = "1000 things"
	seedEvent(t, db, a)
	seedEvent(t, db, b)

	events, err := repo.Query(context.Background(), QueryOptions{Search: "0%"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "100% pure", events[0].Title)
}

func TestQuery_ExcludeAds(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	ad := testEvent(videoID(1), 0)
	ad.IsAd = true
	seedEvent(t, db, ad)
	seedEvent(t, db, testEvent(videoID(2), 0))

	all, err := repo.Query(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "ads are included by default")

	noAds, err := repo.Query(ctx, QueryOptions{ExcludeAds: true})
	require.NoError(t, err)
	require.Len(t, noAds, 1)
	assert.Equal(t, videoID(2), noAds[0].VideoID)
}

func TestQuery_OrderAndPagination(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	titles := []string{"charlie", "Alpha", "bravo", "delta"}
	for i, title := range titles {
		e := testEvent(videoID(i), time.Duration(i)*time.Minute)
		e.Title = title
		seedEvent(t, db, e)
	}

	events, err := repo.Query(ctx, QueryOptions{OrderBy: OrderByTitle, OrderDir: SortAsc})
	require.NoError(t, err)
	var got []string
	for _, e := range events {
		got = append(got, e.Title)
	}
	assert.Equal(t, []string{"Alpha", "bravo", "charlie", "delta"}, got)

	page, err := repo.Query(ctx, QueryOptions{OrderBy: OrderByTitle, OrderDir: SortAsc, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "bravo", page[0].Title)
	assert.Equal(t, "charlie", page[1].Title)

	page, err = repo.Query(ctx, QueryOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestQuery_DefaultLimit(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	records := make([]WatchEvent, DefaultQueryLimit+5)
	for i := range records {
		records[i] = testEvent(videoID(i), time.Duration(i)*time.Second)
	}
	_, err := repo.BulkInsert(ctx, records)
	require.NoError(t, err)

	events, err := repo.Query(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, events, DefaultQueryLimit)
}

func TestQuery_RejectsUnknownOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	_, err := repo.Query(ctx, QueryOptions{OrderBy: "id; DROP TABLE tags"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = repo.Query(ctx, QueryOptions{OrderDir: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = repo.Count(ctx, QueryOptions{TagIDs: []int64{1}, TagLogic: "XOR"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// tagFixture builds events A{x}, B{y}, C{x,y} and D{} and returns the tag ids.
func tagFixture(t *testing.T, db *DB) (x, y int64, ids map[string]int64) {
	t.Helper()
	ctx := context.Background()
	tags := NewTagRepo(db)
	vt := NewVideoTagRepo(db)

	tagX, err := tags.Create(ctx, "x", nil)
	require.NoError(t, err)
	tagY, err := tags.Create(ctx, "y", nil)
	require.NoError(t, err)

	ids = map[string]int64{}
	for i, name := range []string{"A", "B", "C", "D"} {
		e := testEvent(videoID(i), time.Duration(i)*time.Hour)
		e.Title = name
		ids[name] = seedEvent(t, db, e)
	}

	for _, pair := range []struct {
		event string
		tag   int64
	}{{"A", tagX.ID}, {"B", tagY.ID}, {"C", tagX.ID}, {"C", tagY.ID}} {
		_, err := vt.Assign(ctx, ids[pair.event], pair.tag)
		require.NoError(t, err)
	}
	return tagX.ID, tagY.ID, ids
}

func titles(events []WatchEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestQuery_TagLogicAndVersusOr(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()
	x, y, _ := tagFixture(t, db)

	or, err := repo.Query(ctx, QueryOptions{TagIDs: []int64{x, y}, TagLogic: TagLogicOr})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, titles(or))

	and, err := repo.Query(ctx, QueryOptions{TagIDs: []int64{x, y}, TagLogic: TagLogicAnd})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, titles(and))

	// Unset logic means OR.
	def, err := repo.Query(ctx, QueryOptions{TagIDs: []int64{x, y}})
	require.NoError(t, err)
	assert.Len(t, def, 3)

	// Duplicate ids do not make AND impossible.
	dup, err := repo.Query(ctx, QueryOptions{TagIDs: []int64{x, x}, TagLogic: TagLogicAnd})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, titles(dup))
}

func TestQuery_TagFilterWithNoMatches(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()
	tagFixture(t, db)

	unused, err := NewTagRepo(db).Create(ctx, "unused", nil)
	require.NoError(t, err)

	events, err := repo.Query(ctx, QueryOptions{TagIDs: []int64{unused.ID}})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	n, err := repo.Count(ctx, QueryOptions{TagIDs: []int64{unused.ID, 9999}, TagLogic: TagLogicAnd})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCount_MatchesQueryForEveryFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()
	x, y, _ := tagFixture(t, db)

	// Extra events to give the other filters something to discriminate.
	for i := 10; i < 20; i++ {
		e := testEvent(videoID(i), time.Duration(i)*time.Hour)
		e.Title = fmt.Sprintf("extra %d", i)
		e.IsAd = i%3 == 0
		if i%2 == 0 {
			e.ChannelName = ptr("Even Channel")
		}
		seedEvent(t, db, e)
	}

	searches := []string{"", "extra", "even", "nothing-matches"}
	ranges := []struct{ from, to time.Time }{
		{},
		{from: baseTime.Add(2 * time.Hour)},
		{to: baseTime.Add(12 * time.Hour)},
		{from: baseTime.Add(time.Hour), to: baseTime.Add(15 * time.Hour)},
	}
	tagSets := []struct {
		ids   []int64
		logic TagLogic
	}{
		{},
		{ids: []int64{x}},
		{ids: []int64{x, y}, logic: TagLogicOr},
		{ids: []int64{x, y}, logic: TagLogicAnd},
		{ids: []int64{9999}},
	}

	for _, search := range searches {
		for ri, r := range ranges {
			for _, excludeAds := range []bool{false, true} {
				for ti, ts := range tagSets {
					opts := QueryOptions{
						Search:     search,
						DateFrom:   r.from,
						DateTo:     r.to,
						ExcludeAds: excludeAds,
						TagIDs:     ts.ids,
						TagLogic:   ts.logic,
					}
					name := fmt.Sprintf("search=%q/range=%d/excludeAds=%v/tags=%d", search, ri, excludeAds, ti)

					n, err := repo.Count(ctx, opts)
					require.NoError(t, err, name)

					opts.Limit = 1 << 20
					events, err := repo.Query(ctx, opts)
					require.NoError(t, err, name)

					assert.Equal(t, int64(len(events)), n, name)
				}
			}
		}
	}
}

func TestGetLatestWatchedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	latest, err := repo.GetLatestWatchedAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty store has no watermark")

	seedEvent(t, db, testEvent(videoID(1), 3*time.Hour))
	seedEvent(t, db, testEvent(videoID(2), time.Hour))

	latest, err = repo.GetLatestWatchedAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(baseTime.Add(3*time.Hour)))
}

func TestDelete_CascadesToNotesAndTags(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	notes := NewNoteRepo(db)
	vt := NewVideoTagRepo(db)
	ctx := context.Background()

	x, y, ids := tagFixture(t, db)
	c := ids["C"]
	_, err := notes.Add(ctx, c, "first")
	require.NoError(t, err)
	_, err = notes.Add(ctx, c, "second")
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, c)
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err := notes.CountForEvent(ctx, c)
	require.NoError(t, err)
	assert.Zero(t, n)

	tags, err := vt.GetTagsForVideo(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, tags)

	for _, id := range []int64{x, y} {
		tag, err := NewTagRepo(db).Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, tag, "tags survive event deletion")
	}

	deleted, err = repo.Delete(ctx, c)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a missing event reports false")
}

func TestDeleteBeforeAndAll(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedEvent(t, db, testEvent(videoID(i), time.Duration(i)*24*time.Hour))
	}
	cutoff := baseTime.Add(2 * 24 * time.Hour)

	n, err := repo.CountBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	total, err := repo.Count(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
