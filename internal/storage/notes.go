package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const noteColumns = `id, watch_history_id, content, created_at, updated_at`

// NoteRepo manages free-text notes owned by watch events.
type NoteRepo struct {
	db DBTX
}

// NewNoteRepo returns a repository over db, which may be a *DB or a *sql.Tx.
func NewNoteRepo(db DBTX) *NoteRepo {
	return &NoteRepo{db: db}
}

func scanNote(scanner interface{ Scan(dest ...any) error }) (*Note, error) {
	var (
		n                    Note
		createdAt, updatedAt string
	)
	if err := scanner.Scan(&n.ID, &n.WatchHistoryID, &n.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.CreatedAt, _ = parseTimestamp(createdAt)
	n.UpdatedAt, _ = parseTimestamp(updatedAt)
	return &n, nil
}

// Add attaches a note to an event. Content must be non-blank; the event must
// exist (ErrNotFound otherwise).
func (r *NoteRepo) Add(ctx context.Context, eventID int64, content string) (*Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: note content is empty", ErrInvalidInput)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO notes (watch_history_id, content) VALUES (?, ?)
		RETURNING `+noteColumns, eventID, content)

	n, err := scanNote(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("watch event %d: %w", eventID, ErrNotFound)
		}
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return n, nil
}

// Get returns a note by id, or nil when absent.
func (r *NoteRepo) Get(ctx context.Context, id int64) (*Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// GetByEvent returns an event's notes, newest first.
func (r *NoteRepo) GetByEvent(ctx context.Context, eventID int64) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE watch_history_id = ?
		ORDER BY created_at DESC, id DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// Update replaces a note's content. It returns false if the note does not exist.
func (r *NoteRepo) Update(ctx context.Context, id int64, content string) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, fmt.Errorf("%w: note content is empty", ErrInvalidInput)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE notes SET content = ?, updated_at = `+sqlNow+` WHERE id = ?`, content, id)
	if err != nil {
		return false, fmt.Errorf("update note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a note. It returns false if the note does not exist.
func (r *NoteRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllForEvent removes every note of an event and returns how many went.
func (r *NoteRepo) DeleteAllForEvent(ctx context.Context, eventID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE watch_history_id = ?`, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete notes for event: %w", err)
	}
	return res.RowsAffected()
}

// CountForEvent returns the number of notes attached to an event.
func (r *NoteRepo) CountForEvent(ctx context.Context, eventID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE watch_history_id = ?`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

// ContentsByEvents returns note contents keyed by event id, oldest first
// within each event. Events without notes are absent from the map.
func (r *NoteRepo) ContentsByEvents(ctx context.Context, eventIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	eventIDs = uniqueIDs(eventIDs)
	if len(eventIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT watch_history_id, content FROM notes
		WHERE watch_history_id IN (`+placeholders(len(eventIDs))+`)
		ORDER BY watch_history_id, created_at ASC, id ASC`, int64Args(eventIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query note contents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			content string
		)
		if err := rows.Scan(&eventID, &content); err != nil {
			return nil, fmt.Errorf("scan note content: %w", err)
		}
		out[eventID] = append(out[eventID], content)
	}
	return out, rows.Err()
}
