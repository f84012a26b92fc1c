package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/watchvault/internal/storage"
)

// Execute implements the go-flags Commander interface for NoteAddCommand.
func (c *NoteAddCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *NoteAddCommand) run(ctx context.Context, s *session) error {
	n, err := storage.NewNoteRepo(s.db).Add(ctx, c.Args.EventID, joinText(c.Args.Text))
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	if s.json {
		return s.writeJSON(n)
	}
	s.printf("Added note %d to event %d\n", n.ID, n.WatchHistoryID)
	return nil
}

// Execute implements the go-flags Commander interface for NoteListCommand.
func (c *NoteListCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *NoteListCommand) run(ctx context.Context, s *session) error {
	notes, err := storage.NewNoteRepo(s.db).GetByEvent(ctx, c.Args.EventID)
	if err != nil {
		return err
	}
	if s.json {
		return s.writeJSON(notes)
	}
	if len(notes) == 0 {
		s.printf("No notes on event %d\n", c.Args.EventID)
		return nil
	}
	for _, n := range notes {
		s.printf("[%d] %s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"))
		s.printf("    %s\n", n.Content)
	}
	return nil
}

// Execute implements the go-flags Commander interface for NoteEditCommand.
func (c *NoteEditCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *NoteEditCommand) run(ctx context.Context, s *session) error {
	ok, err := storage.NewNoteRepo(s.db).Update(ctx, c.Args.NoteID, joinText(c.Args.Text))
	if err != nil {
		return fmt.Errorf("edit note: %w", err)
	}
	if !ok {
		return fmt.Errorf("note %d not found", c.Args.NoteID)
	}
	if s.json {
		return s.writeJSON(map[string]any{"updated": true, "id": c.Args.NoteID})
	}
	s.printf("Updated note %d\n", c.Args.NoteID)
	return nil
}

// Execute implements the go-flags Commander interface for NoteRemoveCommand.
func (c *NoteRemoveCommand) Execute(args []string) error {
	return withSession(c.globals, c.run)
}

func (c *NoteRemoveCommand) run(ctx context.Context, s *session) error {
	notes := storage.NewNoteRepo(s.db)

	if c.Event {
		n, err := notes.DeleteAllForEvent(ctx, c.Args.ID)
		if err != nil {
			return err
		}
		if s.json {
			return s.writeJSON(map[string]any{"deleted": n, "event_id": c.Args.ID})
		}
		s.printf("Removed %s from event %d\n", count(n, "note", "notes"), c.Args.ID)
		return nil
	}

	ok, err := notes.Delete(ctx, c.Args.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("note %d not found", c.Args.ID)
	}
	if s.json {
		return s.writeJSON(map[string]any{"deleted": 1, "id": c.Args.ID})
	}
	s.printf("Removed note %d\n", c.Args.ID)
	return nil
}
