package database

import (
	"context"
)

// InsertFingerprint records one sampled frame's perceptual hash for a
// MediaItem. The Fingerprint Engine owns frame sampling and hashing; this
// layer only persists the result.
func (d *Database) InsertFingerprint(ctx context.Context, mediaItemID int64, framePosition int, phash string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `
		INSERT INTO video_fingerprints (media_item_id, frame_position, phash) VALUES (?, ?, ?)
	`, mediaItemID, framePosition, phash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReplaceFingerprints atomically drops and re-inserts every fingerprint for
// one MediaItem — used when a video is re-fingerprinted after an edit.
func (d *Database) ReplaceFingerprints(ctx context.Context, mediaItemID int64, phashes []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM video_fingerprints WHERE media_item_id = ?`, mediaItemID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i, h := range phashes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO video_fingerprints (media_item_id, frame_position, phash) VALUES (?, ?, ?)
		`, mediaItemID, i, h); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// FingerprintsForItem returns every sampled frame hash for one MediaItem,
// ordered by frame position.
func (d *Database) FingerprintsForItem(ctx context.Context, mediaItemID int64) ([]VideoFingerprint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var rows []VideoFingerprint
	err := d.sqlx.SelectContext(ctx, &rows, `
		SELECT * FROM video_fingerprints WHERE media_item_id = ? ORDER BY frame_position
	`, mediaItemID)
	return rows, err
}

// AllFingerprints streams every fingerprint in the catalog grouped by
// media item, for the library-wide union-find grouping pass. Returning the
// full set is acceptable at catalog scale: a personal library, not an
// internet-scale archive.
func (d *Database) AllFingerprints(ctx context.Context) ([]VideoFingerprint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var rows []VideoFingerprint
	err := d.sqlx.SelectContext(ctx, &rows, `SELECT * FROM video_fingerprints ORDER BY media_item_id, frame_position`)
	return rows, err
}

// DeleteFingerprintsForItem removes all fingerprints for a MediaItem (used
// when a file is deleted or replaced).
func (d *Database) DeleteFingerprintsForItem(ctx context.Context, mediaItemID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `DELETE FROM video_fingerprints WHERE media_item_id = ?`, mediaItemID)
	return err
}

// CountFingerprintedItems reports how many distinct MediaItems currently
// carry at least one fingerprint, for progress reporting during a batch run.
func (d *Database) CountFingerprintedItems(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int64
	err := d.sqlx.GetContext(ctx, &n, `SELECT COUNT(DISTINCT media_item_id) FROM video_fingerprints`)
	return n, err
}

// FingerprintsForDuplicateScan returns fingerprints for every MediaItem with
// fingerprint_generated=true, optionally restricted to one category, for the
// Fingerprint Engine's library-wide duplicate grouping pass.
func (d *Database) FingerprintsForDuplicateScan(ctx context.Context, category string) ([]VideoFingerprint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `
		SELECT vf.* FROM video_fingerprints vf
		JOIN media_items m ON m.id = vf.media_item_id
		WHERE m.fingerprint_generated = 1
	`
	var args []interface{}
	if category != "" {
		query += ` AND m.category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY vf.media_item_id, vf.frame_position`

	var rows []VideoFingerprint
	err := d.sqlx.SelectContext(ctx, &rows, query, args...)
	return rows, err
}
