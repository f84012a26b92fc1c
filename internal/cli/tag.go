package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Execute implements the go-flags Commander interface for TagCreateCommand.
func (c *TagCreateCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagCreateCommand) run(ctx context.Context, s *session) error {
	var color *string
	if c.Color != "" {
		color = &c.Color
	}
	t, err := storage.NewTagRepo(s.db).Create(ctx, c.Args.Name, color)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if s.json {
		return s.writeJSON(t)
	}
	s.printf("Created tag %q\n", t.Name)
	return nil
}

// Execute implements the go-flags Commander interface for TagListCommand.
func (c *TagListCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagListCommand) run(ctx context.Context, s *session) error {
	tags := storage.NewTagRepo(s.db)

	all, err := tags.ListWithCounts(ctx)
	if err != nil {
		return err
	}

	if c.Search != "" {
		matched, err := tags.Search(ctx, c.Search)
		if err != nil {
			return err
		}
		keep := make(map[int64]bool, len(matched))
		for _, t := range matched {
			keep[t.ID] = true
		}
		filtered := all[:0]
		for _, t := range all {
			if keep[t.ID] {
				filtered = append(filtered, t)
			}
		}
		all = filtered
	}

	if s.json {
		return s.writeJSON(all)
	}
	if len(all) == 0 {
		s.println("No tags")
		return nil
	}
	for _, t := range all {
		s.printf("%-24s %8s", t.Name, humanize.Comma(t.VideoCount))
		if t.Color != nil {
			s.printf("  %s", *t.Color)
		}
		s.println()
	}
	return nil
}

// Execute implements the go-flags Commander interface for TagRenameCommand.
func (c *TagRenameCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagRenameCommand) run(ctx context.Context, s *session) error {
	tags := storage.NewTagRepo(s.db)
	t, err := lookupTag(ctx, tags, c.Args.Name)
	if err != nil {
		return err
	}
	if _, err := tags.Rename(ctx, t.ID, c.Args.NewName); err != nil {
		return fmt.Errorf("rename tag: %w", err)
	}
	if s.json {
		return s.writeJSON(map[string]any{"id": t.ID, "name": storage.NormalizeTagName(c.Args.NewName)})
	}
	s.printf("Renamed tag %q to %q\n", t.Name, storage.NormalizeTagName(c.Args.NewName))
	return nil
}

// Execute implements the go-flags Commander interface for TagColorCommand.
func (c *TagColorCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagColorCommand) run(ctx context.Context, s *session) error {
	tags := storage.NewTagRepo(s.db)
	t, err := lookupTag(ctx, tags, c.Args.Name)
	if err != nil {
		return err
	}

	var color *string
	if c.Args.Color != "" {
		color = &c.Args.Color
	}
	if _, err := tags.UpdateColor(ctx, t.ID, color); err != nil {
		return err
	}

	if s.json {
		return s.writeJSON(map[string]any{"id": t.ID, "color": color})
	}
	if color == nil {
		s.printf("Cleared color of tag %q\n", t.Name)
	} else {
		s.printf("Set color of tag %q to %s\n", t.Name, *color)
	}
	return nil
}

// Execute implements the go-flags Commander interface for TagRemoveCommand.
func (c *TagRemoveCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagRemoveCommand) run(ctx context.Context, s *session) error {
	tags := storage.NewTagRepo(s.db)
	t, err := lookupTag(ctx, tags, c.Args.Name)
	if err != nil {
		return err
	}
	if _, err := tags.Delete(ctx, t.ID); err != nil {
		return err
	}
	if s.json {
		return s.writeJSON(map[string]any{"deleted": true, "id": t.ID})
	}
	s.printf("Deleted tag %q\n", t.Name)
	return nil
}

// Execute implements the go-flags Commander interface for TagAssignCommand.
func (c *TagAssignCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagAssignCommand) run(ctx context.Context, s *session) error {
	tags := storage.NewTagRepo(s.db)

	var (
		t   *storage.Tag
		err error
	)
	if c.Create {
		t, _, err = tags.GetOrCreate(ctx, c.Args.Name, nil)
	} else {
		t, err = lookupTag(ctx, tags, c.Args.Name)
	}
	if err != nil {
		return err
	}

	added, err := storage.NewVideoTagRepo(s.db).BulkAssign(ctx, c.Args.EventIDs, t.ID)
	if err != nil {
		return fmt.Errorf("assign tag: %w", err)
	}
	if s.json {
		return s.writeJSON(map[string]any{"tag_id": t.ID, "assigned": added})
	}
	s.printf("Tagged %s with %q\n", count(added, "event", "events"), t.Name)
	return nil
}

// Execute implements the go-flags Commander interface for TagUnassignCommand.
func (c *TagUnassignCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagUnassignCommand) run(ctx context.Context, s *session) error {
	t, err := lookupTag(ctx, storage.NewTagRepo(s.db), c.Args.Name)
	if err != nil {
		return err
	}
	removed, err := storage.NewVideoTagRepo(s.db).BulkRemove(ctx, c.Args.EventIDs, t.ID)
	if err != nil {
		return err
	}
	if s.json {
		return s.writeJSON(map[string]any{"tag_id": t.ID, "removed": removed})
	}
	s.printf("Removed %q from %s\n", t.Name, count(removed, "event", "events"))
	return nil
}

// Execute implements the go-flags Commander interface for TagSetCommand.
func (c *TagSetCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *TagSetCommand) run(ctx context.Context, s *session) error {
	e, err := storage.NewHistoryRepo(s.db).Get(ctx, c.Args.EventID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("event %d not found", c.Args.EventID)
	}

	tags := storage.NewTagRepo(s.db)
	ids := make([]int64, 0, len(c.Args.Names))
	for _, name := range c.Args.Names {
		t, created, err := tags.GetOrCreate(ctx, name, nil)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("created tag", "name", t.Name)
		}
		ids = append(ids, t.ID)
	}

	if err := storage.NewVideoTagRepo(s.db).SetVideoTags(ctx, e.ID, ids); err != nil {
		return fmt.Errorf("set tags: %w", err)
	}

	current, err := storage.NewVideoTagRepo(s.db).GetTagsForVideo(ctx, e.ID)
	if err != nil {
		return err
	}
	if s.json {
		return s.writeJSON(current)
	}
	s.printf("Event %d now has %s\n", e.ID, count(int64(len(current)), "tag", "tags"))
	return nil
}
