package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tagColumns must match the scan order in scanTag.
const tagColumns = `id, name, color, created_at`

// TagRepo manages global tags.
type TagRepo struct {
	db DBTX
}

// NewTagRepo returns a repository over db, which may be a *DB or a *sql.Tx.
func NewTagRepo(db DBTX) *TagRepo {
	return &TagRepo{db: db}
}

func scanTag(scanner interface{ Scan(dest ...any) error }) (*Tag, error) {
	var (
		t         Tag
		color     sql.NullString
		createdAt string
	)
	if err := scanner.Scan(&t.ID, &t.Name, &color, &createdAt); err != nil {
		return nil, err
	}
	t.Color = stringPtr(color)
	t.CreatedAt, _ = parseTimestamp(createdAt)
	return &t, nil
}

// NormalizeTagName trims and NFC-normalizes a tag name. Case is preserved;
// names are unique case-sensitively.
func NormalizeTagName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

func cleanColor(color *string) *string {
	if color == nil {
		return nil
	}
	c := strings.TrimSpace(*color)
	if c == "" {
		return nil
	}
	return &c
}

// Create inserts a new tag. It returns ErrAlreadyExists if the name is taken.
func (r *TagRepo) Create(ctx context.Context, name string, color *string) (*Tag, error) {
	name = NormalizeTagName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is empty", ErrInvalidInput)
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO tags (name, color) VALUES (?, ?) RETURNING `+tagColumns,
		name, nullString(cleanColor(color)))

	t, err := scanTag(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tag %q: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return t, nil
}

// GetOrCreate returns the tag named name, creating it if absent. The color
// only applies when the tag is created. It is idempotent and race-free: the
// insert is conditional on the unique name.
func (r *TagRepo) GetOrCreate(ctx context.Context, name string, color *string) (*Tag, bool, error) {
	name = NormalizeTagName(name)
	if name == "" {
		return nil, false, fmt.Errorf("%w: tag name is empty", ErrInvalidInput)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (name, color) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, nullString(cleanColor(color)))
	if err != nil {
		return nil, false, fmt.Errorf("insert tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	t, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if t == nil {
		return nil, false, fmt.Errorf("tag %q vanished after insert", name)
	}
	return t, n > 0, nil
}

// Get returns a tag by id, or nil when absent.
func (r *TagRepo) Get(ctx context.Context, id int64) (*Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// GetByName returns the tag with exactly this name, or nil when absent.
func (r *TagRepo) GetByName(ctx context.Context, name string) (*Tag, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = ?`, NormalizeTagName(name))
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag by name: %w", err)
	}
	return t, nil
}

// Rename changes a tag's name. It returns false if the tag does not exist
// and ErrAlreadyExists if another tag has the new name.
func (r *TagRepo) Rename(ctx context.Context, id int64, name string) (bool, error) {
	name = NormalizeTagName(name)
	if name == "" {
		return false, fmt.Errorf("%w: tag name is empty", ErrInvalidInput)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE tags SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("tag %q: %w", name, ErrAlreadyExists)
		}
		return false, fmt.Errorf("rename tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateColor sets or clears (nil or blank) a tag's color.
func (r *TagRepo) UpdateColor(ctx context.Context, id int64, color *string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tags SET color = ? WHERE id = ?`, nullString(cleanColor(color)), id)
	if err != nil {
		return false, fmt.Errorf("update tag color: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a tag and, by cascade, its associations. Events are untouched.
func (r *TagRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all tags ordered alphabetically by name.
func (r *TagRepo) List(ctx context.Context) ([]Tag, error) {
	return r.queryTags(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name ASC`)
}

// Search returns tags whose name contains substr, ignoring case.
func (r *TagRepo) Search(ctx context.Context, substr string) ([]Tag, error) {
	pattern := "%" + escapeLike(FoldText(NormalizeTagName(substr))) + "%"
	return r.queryTags(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE casefold(name) LIKE ? ESCAPE '\' ORDER BY name ASC`, pattern)
}

func (r *TagRepo) queryTags(ctx context.Context, query string, args ...any) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
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

// ListWithCounts returns every tag with the number of events carrying it,
// computed per call from video_tags.
func (r *TagRepo) ListWithCounts(ctx context.Context) ([]TagWithCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_at, COUNT(vt.watch_history_id)
		FROM tags t
		LEFT JOIN video_tags vt ON vt.tag_id = t.id
		GROUP BY t.id
		ORDER BY t.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tag counts: %w", err)
	}
	defer rows.Close()

	out := []TagWithCount{}
	for rows.Next() {
		var (
			tc        TagWithCount
			color     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tc.ID, &tc.Name, &color, &createdAt, &tc.VideoCount); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		tc.Color = stringPtr(color)
		tc.CreatedAt, _ = parseTimestamp(createdAt)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Count returns the number of tags in the store.
func (r *TagRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return n, nil
}

// DeleteAll removes every tag and, by cascade, every association.
func (r *TagRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tags`)
	if err != nil {
		return 0, fmt.Errorf("purge tags: %w", err)
	}
	return res.RowsAffected()
}
