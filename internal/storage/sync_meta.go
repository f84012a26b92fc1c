package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Well-known sync_meta keys.
const (
	KeyLastBulkImport      = "last_takeout_import"
	KeyLastIncrementalSync = "last_incremental_sync"
)

// SyncMetaRepo is a small key/value store for sync watermarks and
// schema bookkeeping.
type SyncMetaRepo struct {
	db DBTX
}

// NewSyncMetaRepo returns a repository over db, which may be a *DB or a *sql.Tx.
func NewSyncMetaRepo(db DBTX) *SyncMetaRepo {
	return &SyncMetaRepo{db: db}
}

// MetaEntry is one sync_meta row.
type MetaEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Get returns the value stored under key. ok is false when the key is absent.
func (r *SyncMetaRepo) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get sync_meta %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key with value and refreshes its updated_at.
func (r *SyncMetaRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: sync_meta key is empty", ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, `+sqlNow+`)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set sync_meta %q: %w", key, err)
	}
	return nil
}

// Delete removes key. It returns false if the key did not exist.
func (r *SyncMetaRepo) Delete(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_meta WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete sync_meta %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// All returns every entry ordered by key.
func (r *SyncMetaRepo) All(ctx context.Context) ([]MetaEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM sync_meta ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list sync_meta: %w", err)
	}
	defer rows.Close()

	entries := []MetaEntry{}
	for rows.Next() {
		var (
			e         MetaEntry
			updatedAt string
		)
		if err := rows.Scan(&e.Key, &e.Value, &updatedAt); err != nil {
			return nil, err
		}
		e.UpdatedAt, _ = parseTimestamp(updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTime reads a timestamp stored with SetTime. A nil time means unset.
func (r *SyncMetaRepo) GetTime(ctx context.Context, key string) (*time.Time, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	t, err := ParseWatchedAt(v)
	if err != nil {
		return nil, fmt.Errorf("sync_meta %q: %w", key, err)
	}
	return &t, nil
}

// SetTime stores t under key in the canonical instant format.
func (r *SyncMetaRepo) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, FormatWatchedAt(t))
}
