package database

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TagColor deterministically derives a color from a tag name, so the same
// name always renders the same color without a stored preference.
func TagColor(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(name)))
	return fmt.Sprintf("#%02x%02x%02x", sum[0], sum[1], sum[2])
}

// EnsureTag returns the id of the tag named name (lowercased), creating it
// with a deterministic color if it doesn't exist.
func (d *Database) EnsureTag(ctx context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, errors.New("tag name must not be empty")
	}

	var id int64
	err := d.sqlx.GetContext(ctx, &id, `SELECT id FROM tags WHERE name = ? COLLATE NOCASE`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := d.sqlx.ExecContext(ctx, `INSERT INTO tags (name, color) VALUES (?, ?)`, name, TagColor(name))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetMediaItemTags replaces the full tag set on a MediaItem.
func (d *Database) SetMediaItemTags(ctx context.Context, mediaItemID int64, names []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_item_tags WHERE media_item_id = ?`, mediaItemID); err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		var tagID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ? COLLATE NOCASE`, name).Scan(&tagID)
		if errors.Is(err, sql.ErrNoRows) {
			res, insErr := tx.ExecContext(ctx, `INSERT INTO tags (name, color) VALUES (?, ?)`, name, TagColor(name))
			if insErr != nil {
				_ = tx.Rollback()
				return insErr
			}
			tagID, _ = res.LastInsertId()
		} else if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO media_item_tags (media_item_id, tag_id) VALUES (?, ?)`, mediaItemID, tagID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// AddMediaItemTag links one tag (creating it if needed) to a MediaItem.
func (d *Database) AddMediaItemTag(ctx context.Context, mediaItemID int64, name string) error {
	tagID, err := d.EnsureTag(ctx, name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.sqlx.ExecContext(ctx, `INSERT OR IGNORE INTO media_item_tags (media_item_id, tag_id) VALUES (?, ?)`, mediaItemID, tagID)
	return err
}

// RemoveMediaItemTag unlinks a tag from a MediaItem (the tag itself
// survives for reuse elsewhere).
func (d *Database) RemoveMediaItemTag(ctx context.Context, mediaItemID int64, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `
		DELETE FROM media_item_tags WHERE media_item_id = ? AND tag_id = (
			SELECT id FROM tags WHERE name = ? COLLATE NOCASE
		)
	`, mediaItemID, strings.ToLower(name))
	return err
}

// MediaItemTags returns the tag names attached to a MediaItem.
func (d *Database) MediaItemTags(ctx context.Context, mediaItemID int64) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	err := d.sqlx.SelectContext(ctx, &names, `
		SELECT t.name FROM tags t
		JOIN media_item_tags mit ON mit.tag_id = t.id
		WHERE mit.media_item_id = ?
		ORDER BY t.name
	`, mediaItemID)
	return names, err
}

// BatchMediaItemTags returns tag names keyed by media item id, in one
// query instead of N — the batched-join-fetch idiom the schema's cascade
// design calls for.
func (d *Database) BatchMediaItemTags(ctx context.Context, mediaItemIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(mediaItemIDs))
	if len(mediaItemIDs) == 0 {
		return result, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	query, args, err := sqlxIn(`
		SELECT mit.media_item_id, t.name FROM tags t
		JOIN media_item_tags mit ON mit.tag_id = t.id
		WHERE mit.media_item_id IN (?)
		ORDER BY t.name
	`, mediaItemIDs)
	if err != nil {
		return nil, err
	}
	rows, err := d.sqlx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		result[id] = append(result[id], name)
	}
	return result, rows.Err()
}

// DeleteUnusedTags removes every tag with zero MediaItem links.
func (d *Database) DeleteUnusedTags(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `
		DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM media_item_tags)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
