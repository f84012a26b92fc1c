package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	return withSession(c.globals, func(ctx context.Context, s *session) error {
		return c.run(ctx, s, args)
	})
}

// queryOptions turns flags and args into repository query options.
func (c *SearchCommand) queryOptions(ctx context.Context, s *session, args []string, now time.Time) (storage.QueryOptions, error) {
	opts := storage.QueryOptions{
		Search:     strings.Join(args, " "),
		OrderBy:    storage.OrderField(c.Sort),
		OrderDir:   storage.SortDesc,
		ExcludeAds: c.NoAds,
		Offset:     c.Offset,
		Limit:      c.Limit,
		TagLogic:   storage.TagLogicOr,
	}
	if c.Asc {
		opts.OrderDir = storage.SortAsc
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.Query.DefaultLimit
	}
	opts.Limit = min(opts.Limit, s.cfg.Query.MaxLimit)

	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return opts, fmt.Errorf("invalid --since value %q: %w", c.Since, err)
		}
		opts.DateFrom = now.Add(-dur)
	}
	if c.Until != "" {
		dur, err := parseDuration(c.Until)
		if err != nil {
			return opts, fmt.Errorf("invalid --until value %q: %w", c.Until, err)
		}
		opts.DateTo = now.Add(-dur)
	}
	if c.From != "" {
		t, err := parseDate(c.From, false)
		if err != nil {
			return opts, err
		}
		opts.DateFrom = t
	}
	if c.To != "" {
		t, err := parseDate(c.To, true)
		if err != nil {
			return opts, err
		}
		opts.DateTo = t
	}

	if len(c.Tag) > 0 {
		tags := storage.NewTagRepo(s.db)
		for _, name := range c.Tag {
			t, err := lookupTag(ctx, tags, name)
			if err != nil {
				return opts, err
			}
			opts.TagIDs = append(opts.TagIDs, t.ID)
		}
		if c.AllTags {
			opts.TagLogic = storage.TagLogicAnd
		}
	}
	return opts, nil
}

func (c *SearchCommand) run(ctx context.Context, s *session, args []string) error {
	opts, err := c.queryOptions(ctx, s, args, time.Now())
	if err != nil {
		return err
	}

	history := storage.NewHistoryRepo(s.db)
	results, err := history.Query(ctx, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	total, err := history.Count(ctx, opts)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}

	if s.json {
		return s.writeJSON(searchJSON{
			Count:   len(results),
			Total:   total,
			Query:   opts.Search,
			Results: results,
		})
	}
	c.printHuman(s, opts.Search, results, total)
	return nil
}

type searchJSON struct {
	Count   int                  `json:"count"`
	Total   int64                `json:"total"`
	Query   string               `json:"query"`
	Results []storage.WatchEvent `json:"results"`
}

func (c *SearchCommand) printHuman(s *session, query string, results []storage.WatchEvent, total int64) {
	if len(results) == 0 {
		if query != "" {
			s.printf("No results found for %q\n", query)
		} else {
			s.println("No results found")
		}
		return
	}

	if query != "" {
		s.printf("Showing %d of %s for %q\n\n", len(results), count(total, "result", "results"), query)
	} else {
		s.printf("Showing %d of %s\n\n", len(results), count(total, "event", "events"))
	}

	for i, e := range results {
		s.printf("%d. %s", i+1+c.Offset, e.Title)
		if e.ChannelName != nil {
			s.printf(" \u2014 %s", *e.ChannelName)
		}
		s.println()
		s.printf("   %s\n", e.URL)

		meta := fmt.Sprintf("#%d \u00b7 %s", e.ID, e.WatchedAt.Local().Format("2006-01-02 15:04"))
		if e.IsAd {
			meta += " \u00b7 ad"
		}
		s.printf("   %s\n", meta)

		if i < len(results)-1 {
			s.println()
		}
	}
}

type showJSON struct {
	Event storage.WatchEvent `json:"event"`
	Notes []storage.Note     `json:"notes"`
	Tags  []storage.Tag      `json:"tags"`
}

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *ShowCommand) run(ctx context.Context, s *session) error {
	id := c.Args.ID
	e, err := storage.NewHistoryRepo(s.db).Get(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("event %d not found", id)
	}

	notes, err := storage.NewNoteRepo(s.db).GetByEvent(ctx, id)
	if err != nil {
		return err
	}
	tags, err := storage.NewVideoTagRepo(s.db).GetTagsForVideo(ctx, id)
	if err != nil {
		return err
	}

	if s.json {
		return s.writeJSON(showJSON{Event: *e, Notes: notes, Tags: tags})
	}

	s.println(e.Title)
	s.println(strings.Repeat("=", min(len(e.Title), 72)))
	s.printf("ID:        %d\n", e.ID)
	s.printf("Video:     %s\n", e.VideoID)
	s.printf("URL:       %s\n", e.URL)
	if e.ChannelName != nil {
		s.printf("Channel:   %s", *e.ChannelName)
		if e.ChannelURL != nil {
			s.printf(" (%s)", *e.ChannelURL)
		}
		s.println()
	}
	s.printf("Watched:   %s (%s)\n", e.WatchedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(e.WatchedAt))
	s.printf("Source:    %s\n", e.Source)
	if e.IsAd {
		s.println("Ad:        yes")
	}

	if len(tags) > 0 {
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
		s.printf("Tags:      %s\n", strings.Join(names, ", "))
	}

	if len(notes) > 0 {
		s.println()
		s.printf("Notes (%d):\n", len(notes))
		for _, n := range notes {
			s.printf("  [%d] %s  %s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Content)
		}
	}
	return nil
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *DeleteCommand) run(ctx context.Context, s *session) error {
	ok, err := storage.NewHistoryRepo(s.db).Delete(ctx, c.Args.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %d not found", c.Args.ID)
	}

	if s.json {
		return s.writeJSON(map[string]any{"deleted": true, "id": c.Args.ID})
	}
	s.printf("Deleted event %d\n", c.Args.ID)
	return nil
}
