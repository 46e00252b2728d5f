package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"clipper/internal/metrics"
)

// ErrNotFound is returned by catalog lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ScanFields is the subset of MediaItem columns the Scan Reconciler is
// permitted to touch. Editorial fields (series/season/episode/year/channel/
// rating/favorite/is_final/display_name/description/tags/actors) are never
// overwritten by a rescan of unchanged disk state.
type ScanFields struct {
	Path         string
	Name         string
	Category     string
	Subcategory  *string
	RelativePath string
	Size         int64
	Mtime        int64
	Extension    string
	MediaType    MediaType
}

// UpsertScannedItem inserts a newly-seen file or updates the mutable
// disk-derived fields of an existing one, per the Scan Reconciler's fast
// scan step 4. Returns the item id and whether a new row was created.
func (d *Database) UpsertScannedItem(ctx context.Context, f ScanFields, stampThumbnailUpdated bool) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	done := observeQuery("catalog_upsert_scanned_item")
	defer func() { done(nil) }()

	now := nowUnix()

	var existingID int64
	err := d.sqlx.GetContext(ctx, &existingID, `SELECT id FROM media_items WHERE path = ?`, f.Path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("lookup media item by path: %w", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		displayName := stemName(f.Name)
		res, err := d.sqlx.ExecContext(ctx, `
			INSERT INTO media_items
				(path, name, display_name, category, subcategory, relative_path,
				 size, mtime, extension, media_type, thumbnail_updated_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.Path, f.Name, displayName, f.Category, f.Subcategory, f.RelativePath,
			f.Size, f.Mtime, f.Extension, string(f.MediaType), now, now, now)
		if err != nil {
			return 0, false, fmt.Errorf("insert media item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		metrics.DBRowsAffected.WithLabelValues("catalog_insert_media_item").Observe(1)
		return id, true, nil
	}

	thumbStamp := ""
	if stampThumbnailUpdated {
		thumbStamp = fmt.Sprintf(", thumbnail_updated_at = %d", now)
	}
	query := fmt.Sprintf(`
		UPDATE media_items SET
			name = ?, category = ?, subcategory = ?, relative_path = ?,
			size = ?, mtime = ?, extension = ?, media_type = ?, updated_at = ?%s
		WHERE id = ?
	`, thumbStamp)
	if _, err := d.sqlx.ExecContext(ctx, query,
		f.Name, f.Category, f.Subcategory, f.RelativePath,
		f.Size, f.Mtime, f.Extension, string(f.MediaType), now, existingID); err != nil {
		return 0, false, fmt.Errorf("update media item: %w", err)
	}
	return existingID, false, nil
}

func stemName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// DeletePathsNotIn bulk-deletes every MediaItem in category whose path is
// not present in keep, in a single DELETE ... WHERE path NOT IN (...) —
// the reconciler's step 3 contract ("single DELETE-IN query, not per-row").
func (d *Database) DeletePathsNotIn(ctx context.Context, category string, keep []string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	done := observeQuery("catalog_delete_paths_not_in")
	defer func() { done(nil) }()

	if len(keep) == 0 {
		res, err := d.sqlx.ExecContext(ctx, `DELETE FROM media_items WHERE category = ?`, category)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	query, args, err := sqlxIn(`DELETE FROM media_items WHERE category = ? AND path NOT IN (?)`, category, keep)
	if err != nil {
		return 0, fmt.Errorf("build delete-not-in query: %w", err)
	}
	res, err := d.sqlx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete missing media items: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		metrics.DBRowsAffected.WithLabelValues("catalog_delete_paths_not_in").Observe(float64(n))
	}
	return n, nil
}

// DeleteMissingUnderRoot deletes every MediaItem whose path is not present
// on disk, for a root-wide prune across the whole active root.
func (d *Database) DeleteMissingUnderRoot(ctx context.Context, existingPaths map[string]bool) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.sqlx.QueryxContext(ctx, `SELECT id, path FROM media_items`)
	if err != nil {
		return 0, err
	}
	var toDelete []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if !existingPaths[path] {
			toDelete = append(toDelete, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	query, args, err := sqlxIn(`DELETE FROM media_items WHERE id IN (?)`, toDelete)
	if err != nil {
		return 0, err
	}
	res, err := d.sqlx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetMediaItem fetches one item by id.
func (d *Database) GetMediaItem(ctx context.Context, id int64) (*MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var item MediaItem
	err := d.sqlx.GetContext(ctx, &item, `SELECT * FROM media_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetMediaItemByPath fetches one item by its absolute path.
func (d *Database) GetMediaItemByPath(ctx context.Context, path string) (*MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var item MediaItem
	err := d.sqlx.GetContext(ctx, &item, `SELECT * FROM media_items WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListMediaItemsByCategory returns every item in a category, optionally
// restricted by media type ("" means both).
func (d *Database) ListMediaItemsByCategory(ctx context.Context, category string, mediaType MediaType) ([]MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `SELECT * FROM media_items WHERE category = ?`
	args := []interface{}{category}
	if mediaType != "" {
		query += ` AND media_type = ?`
		args = append(args, string(mediaType))
	}
	query += ` ORDER BY name COLLATE NOCASE`

	var items []MediaItem
	if err := d.sqlx.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsNeedingThumbnail lists every MediaItem in category whose
// thumbnail_generated is not "ok", oldest touched first — the candidate set
// for a smart-refresh thumbnail pass.
func (d *Database) ItemsNeedingThumbnail(ctx context.Context, category string) ([]MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var items []MediaItem
	err := d.sqlx.SelectContext(ctx, &items, `
		SELECT * FROM media_items
		WHERE category = ? AND thumbnail_generated != ?
		ORDER BY thumbnail_updated_at ASC
	`, category, string(ThumbnailOK))
	if err != nil {
		return nil, err
	}
	return items, nil
}

// EditorialUpdate carries the user-settable fields of a MediaItem; nil
// pointers leave the existing value untouched.
type EditorialUpdate struct {
	DisplayName *string
	Description *string
	Series      *string
	Season      *int
	Episode     *string
	Year        *int
	Channel     *string
	Rating      *int
	Favorite    *bool
	IsFinal     *bool
}

// UpdateEditorial applies a partial editorial update to one MediaItem.
func (d *Database) UpdateEditorial(ctx context.Context, id int64, u EditorialUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sets []string
	var args []interface{}
	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if u.DisplayName != nil {
		add("display_name", *u.DisplayName)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Series != nil {
		add("series", *u.Series)
	}
	if u.Season != nil {
		add("season", *u.Season)
	}
	if u.Episode != nil {
		add("episode", *u.Episode)
	}
	if u.Year != nil {
		add("year", *u.Year)
	}
	if u.Channel != nil {
		add("channel", *u.Channel)
	}
	if u.Rating != nil {
		add("rating", *u.Rating)
	}
	if u.Favorite != nil {
		add("favorite", boolToInt(*u.Favorite))
	}
	if u.IsFinal != nil {
		add("is_final", boolToInt(*u.IsFinal))
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", nowUnix())
	args = append(args, id)

	query := "UPDATE media_items SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := d.sqlx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpdateEditorial applies the same editorial update to every id in
// ids, as one transaction — all-or-nothing per request.
func (d *Database) BulkUpdateEditorial(ctx context.Context, ids []int64, u EditorialUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var sets []string
	var base []interface{}
	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		base = append(base, val)
	}
	if u.DisplayName != nil {
		add("display_name", *u.DisplayName)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Series != nil {
		add("series", *u.Series)
	}
	if u.Season != nil {
		add("season", *u.Season)
	}
	if u.Episode != nil {
		add("episode", *u.Episode)
	}
	if u.Year != nil {
		add("year", *u.Year)
	}
	if u.Channel != nil {
		add("channel", *u.Channel)
	}
	if u.Rating != nil {
		add("rating", *u.Rating)
	}
	if u.Favorite != nil {
		add("favorite", boolToInt(*u.Favorite))
	}
	if u.IsFinal != nil {
		add("is_final", boolToInt(*u.IsFinal))
	}
	if len(sets) == 0 {
		_ = tx.Rollback()
		return nil
	}
	add("updated_at", nowUnix())

	query := "UPDATE media_items SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	for _, id := range ids {
		args := append(append([]interface{}{}, base...), id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk update id %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// UpdateTechnicalMetadata stores the Metadata Extractor's output on a
// MediaItem. Images may legitimately have nil duration/fps/codec.
func (d *Database) UpdateTechnicalMetadata(ctx context.Context, id int64, duration *float64, width, height *int, codec *string, bitrate *int64, fps *float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE media_items SET duration = ?, width = ?, height = ?, codec = ?, bitrate = ?, fps = ?, updated_at = ?
		WHERE id = ?
	`, duration, width, height, codec, bitrate, fps, nowUnix(), id)
	return err
}

// MarkThumbnailState records the outcome of a thumbnail generation attempt.
func (d *Database) MarkThumbnailState(ctx context.Context, id int64, state ThumbnailState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE media_items SET thumbnail_generated = ?, thumbnail_updated_at = ? WHERE id = ?
	`, string(state), nowUnix(), id)
	return err
}

// MarkFingerprintGenerated records that fingerprinting has completed.
func (d *Database) MarkFingerprintGenerated(ctx context.Context, id int64, generated bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := nowUnix()
	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE media_items SET fingerprint_generated = ?, fingerprinted_at = ? WHERE id = ?
	`, boolToInt(generated), now, id)
	return err
}

// UpdatePathAndLocation is used by the Move/Rename Coordinator (C9) to
// relocate a MediaItem after a successful filesystem rename.
func (d *Database) UpdatePathAndLocation(ctx context.Context, id int64, newPath, newName, newCategory string, newSubcategory *string, newRelativePath string, size int64, mtime int64, extension string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `
		UPDATE media_items SET
			path = ?, name = ?, category = ?, subcategory = ?, relative_path = ?,
			size = ?, mtime = ?, extension = ?, updated_at = ?
		WHERE id = ?
	`, newPath, newName, newCategory, newSubcategory, newRelativePath, size, mtime, extension, nowUnix(), id)
	return err
}

// UpdateDisplayName is used by the hash-rename flow, which sets
// display_name = <id> alongside the path change.
func (d *Database) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `UPDATE media_items SET display_name = ?, updated_at = ? WHERE id = ?`, displayName, nowUnix(), id)
	return err
}

// DeleteMediaItem hard-deletes a MediaItem row; cascades handle
// tags/actors/fingerprints/face links per the schema's ON DELETE CASCADE.
func (d *Database) DeleteMediaItem(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameCategoryBulk relocates every MediaItem in oldCategory to newCategory,
// rewriting each row's path from oldDir-rooted to newDir-rooted while leaving
// relative_path (position inside the category) untouched. It is used by the
// Move/Rename Coordinator's folder-rename flow, which only ever touches
// top-level categories. Returns the affected rows as they stood before the
// rename so the caller can rehash thumbnail keys old path -> new path.
func (d *Database) RenameCategoryBulk(ctx context.Context, oldCategory, newCategory, oldDir, newDir string) ([]MediaItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var items []MediaItem
	if err := d.sqlx.SelectContext(ctx, &items, `SELECT * FROM media_items WHERE category = ?`, oldCategory); err != nil {
		return nil, err
	}

	tx, err := d.sqlx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := nowUnix()
	for _, item := range items {
		newPath := newDir + strings.TrimPrefix(item.Path, oldDir)
		if _, err := tx.ExecContext(ctx, `
			UPDATE media_items SET path = ?, category = ?, updated_at = ? WHERE id = ?
		`, newPath, newCategory, now, item.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// RenameFolderScanStatus moves the folder_scan_status row for oldCategory to
// newCategory, if one exists.
func (d *Database) RenameFolderScanStatus(ctx context.Context, oldCategory, newCategory string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `UPDATE folder_scan_status SET category = ? WHERE category = ?`, newCategory, oldCategory)
	return err
}

// UpsertFolderScanStatus records the outcome of a reconciliation pass for
// one category.
func (d *Database) UpsertFolderScanStatus(ctx context.Context, category string, videoCount int, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	seconds := duration.Seconds()
	now := nowUnix()
	_, err := d.sqlx.ExecContext(ctx, `
		INSERT INTO folder_scan_status (category, last_scanned, video_count, scan_duration, is_scanned)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(category) DO UPDATE SET
			last_scanned = excluded.last_scanned,
			video_count = excluded.video_count,
			scan_duration = excluded.scan_duration,
			is_scanned = 1
	`, category, now, videoCount, seconds)
	return err
}

// GetFolderScanStatus returns the last reconciliation outcome for category,
// if any.
func (d *Database) GetFolderScanStatus(ctx context.Context, category string) (*FolderScanStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s FolderScanStatus
	err := d.sqlx.GetContext(ctx, &s, `SELECT * FROM folder_scan_status WHERE category = ?`, category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqlxIn expands a "?"-bound IN(...) clause for a slice argument. SQLite
// uses "?" positional binding already, so sqlx.In's default output needs
// no further rebinding.
func sqlxIn(query string, args ...interface{}) (string, []interface{}, error) {
	return sqlx.In(query, args...)
}
