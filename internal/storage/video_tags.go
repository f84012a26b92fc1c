package storage

import (
	"context"
	"fmt"
)

// VideoTagRepo manages the many-to-many association between watch events
// and tags.
type VideoTagRepo struct {
	db DBTX
}

// NewVideoTagRepo returns a repository over db, which may be a *DB or a *sql.Tx.
func NewVideoTagRepo(db DBTX) *VideoTagRepo {
	return &VideoTagRepo{db: db}
}

// Assign tags an event. It returns false without error when the pair already
// exists, and ErrNotFound when either side does not exist.
func (r *VideoTagRepo) Assign(ctx context.Context, eventID, tagID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO video_tags (watch_history_id, tag_id) VALUES (?, ?)
		 ON CONFLICT(watch_history_id, tag_id) DO NOTHING`, eventID, tagID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("event %d or tag %d: %w", eventID, tagID, ErrNotFound)
		}
		return false, fmt.Errorf("assign tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove untags an event. It returns false if the pair did not exist.
func (r *VideoTagRepo) Remove(ctx context.Context, eventID, tagID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM video_tags WHERE watch_history_id = ? AND tag_id = ?`, eventID, tagID)
	if err != nil {
		return false, fmt.Errorf("remove tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasTag reports whether the event carries the tag.
func (r *VideoTagRepo) HasTag(ctx context.Context, eventID, tagID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM video_tags WHERE watch_history_id = ? AND tag_id = ?)`,
		eventID, tagID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check tag: %w", err)
	}
	return ok, nil
}

// GetTagsForVideo returns the tags on an event ordered by name.
func (r *VideoTagRepo) GetTagsForVideo(ctx context.Context, eventID int64) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_at
		FROM tags t
		JOIN video_tags vt ON vt.tag_id = t.id
		WHERE vt.watch_history_id = ?
		ORDER BY t.name ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query event tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

// GetVideoIDsForTag returns the ids of events carrying the tag, ascending.
func (r *VideoTagRepo) GetVideoIDsForTag(ctx context.Context, tagID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT watch_history_id FROM video_tags WHERE tag_id = ? ORDER BY watch_history_id ASC`, tagID)
	if err != nil {
		return nil, fmt.Errorf("query tagged events: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetVideoTags replaces the event's tag set with tagIDs atomically.
func (r *VideoTagRepo) SetVideoTags(ctx context.Context, eventID int64, tagIDs []int64) error {
	return withTx(ctx, r.db, func(q DBTX) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM video_tags WHERE watch_history_id = ?`, eventID); err != nil {
			return fmt.Errorf("clear event tags: %w", err)
		}
		inner := NewVideoTagRepo(q)
		for _, tagID := range uniqueIDs(tagIDs) {
			if _, err := inner.Assign(ctx, eventID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkAssign tags every event in eventIDs and returns how many new
// associations were created.
func (r *VideoTagRepo) BulkAssign(ctx context.Context, eventIDs []int64, tagID int64) (int64, error) {
	var added int64
	err := withTx(ctx, r.db, func(q DBTX) error {
		inner := NewVideoTagRepo(q)
		for _, id := range uniqueIDs(eventIDs) {
			ok, err := inner.Assign(ctx, id, tagID)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// BulkRemove untags every event in eventIDs and returns how many
// associations were removed.
func (r *VideoTagRepo) BulkRemove(ctx context.Context, eventIDs []int64, tagID int64) (int64, error) {
	eventIDs = uniqueIDs(eventIDs)
	if len(eventIDs) == 0 {
		return 0, nil
	}

	args := append([]any{tagID}, int64Args(eventIDs)...)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM video_tags WHERE tag_id = ? AND watch_history_id IN (`+placeholders(len(eventIDs))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("bulk remove tag: %w", err)
	}
	return res.RowsAffected()
}

// TagNamesByEvents returns tag names keyed by event id, sorted by name
// within each event. Events without tags are absent from the map.
func (r *VideoTagRepo) TagNamesByEvents(ctx context.Context, eventIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	eventIDs = uniqueIDs(eventIDs)
	if len(eventIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT vt.watch_history_id, t.name
		FROM video_tags vt
		JOIN tags t ON t.id = vt.tag_id
		WHERE vt.watch_history_id IN (`+placeholders(len(eventIDs))+`)
		ORDER BY vt.watch_history_id, t.name ASC`, int64Args(eventIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query tag names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			name    string
		)
		if err := rows.Scan(&eventID, &name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		out[eventID] = append(out[eventID], name)
	}
	return out, rows.Err()
}
