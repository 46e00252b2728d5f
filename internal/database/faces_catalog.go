package database

import (
	"context"
	"database/sql"
	"errors"
)

// CreateFaceID creates a new person identity.
func (d *Database) CreateFaceID(ctx context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `INSERT INTO face_ids (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFaceID fetches one FaceID by id.
func (d *Database) GetFaceID(ctx context.Context, id int64) (*FaceID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var f FaceID
	err := d.sqlx.GetContext(ctx, &f, `SELECT * FROM face_ids WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFaceIDs returns the full face catalog, ordered by name.
func (d *Database) ListFaceIDs(ctx context.Context) ([]FaceID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var faces []FaceID
	err := d.sqlx.SelectContext(ctx, &faces, `SELECT * FROM face_ids ORDER BY name COLLATE NOCASE`)
	return faces, err
}

// RenameFaceID sets a FaceID's display name and/or linked actor.
func (d *Database) RenameFaceID(ctx context.Context, id int64, name *string, actorID *int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name != nil {
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE face_ids SET name = ? WHERE id = ?`, *name, id); err != nil {
			return err
		}
	}
	if actorID != nil {
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE face_ids SET actor_id = ? WHERE id = ?`, *actorID, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFaceID removes a FaceID; encodings and VideoFace links cascade.
func (d *Database) DeleteFaceID(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `DELETE FROM face_ids WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddEncodingResult distinguishes a genuine insert from a rejected
// byte-exact duplicate, per invariant #10.
type AddEncodingResult struct {
	Encoding *FaceEncoding
	Skipped  bool
}

// AddEncodingToFace inserts a FaceEncoding under faceID, rejecting
// byte-exact duplicates (same face_id, same encoding_hash) as a successful
// "skipped" outcome rather than an error.
func (d *Database) AddEncodingToFace(ctx context.Context, faceID int64, mediaItemID *int64, frameTimestamp float64, encodingB64, encodingHash string, thumbnail *string, confidence, quality *float64) (*AddEncodingResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var existingID int64
	err := d.sqlx.GetContext(ctx, &existingID, `
		SELECT id FROM face_encodings WHERE face_id = ? AND encoding_hash = ?
	`, faceID, encodingHash)
	if err == nil {
		return &AddEncodingResult{Skipped: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO face_encodings (face_id, media_item_id, frame_timestamp, encoding, encoding_hash, thumbnail, confidence, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, faceID, mediaItemID, frameTimestamp, encodingB64, encodingHash, thumbnail, confidence, quality)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	encID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET encoding_count = encoding_count + 1 WHERE id = ?`, faceID); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	// First encoding on a face becomes its primary by default.
	var primary sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT primary_encoding_id FROM face_ids WHERE id = ?`, faceID).Scan(&primary); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if !primary.Valid {
		if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET primary_encoding_id = ? WHERE id = ?`, encID, faceID); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &AddEncodingResult{Encoding: &FaceEncoding{
		ID: encID, FaceID: faceID, MediaItemID: mediaItemID, FrameTimestamp: frameTimestamp,
		Encoding: encodingB64, EncodingHash: encodingHash, Thumbnail: thumbnail,
		Confidence: confidence, QualityScore: quality,
	}}, nil
}

// DeleteEncoding removes one FaceEncoding, decrements encoding_count, and
// auto-promotes a new primary_encoding_id if the deleted one held that
// role. Returns false if the face had no remaining encodings (it is
// retained regardless, per the no-embedding-label invariant).
func (d *Database) DeleteEncoding(ctx context.Context, encodingID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var faceID int64
	if err := d.sqlx.GetContext(ctx, &faceID, `SELECT face_id FROM face_encodings WHERE id = ?`, encodingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_encodings WHERE id = ?`, encodingID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET encoding_count = MAX(0, encoding_count - 1) WHERE id = ?`, faceID); err != nil {
		_ = tx.Rollback()
		return err
	}

	var primary sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT primary_encoding_id FROM face_ids WHERE id = ?`, faceID).Scan(&primary); err != nil {
		_ = tx.Rollback()
		return err
	}
	if primary.Valid && primary.Int64 == encodingID {
		var nextID sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM face_encodings WHERE face_id = ?
			ORDER BY quality_score DESC NULLS LAST, confidence DESC NULLS LAST LIMIT 1
		`, faceID).Scan(&nextID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			_ = tx.Rollback()
			return err
		}
		if nextID.Valid {
			if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET primary_encoding_id = ? WHERE id = ?`, nextID.Int64, faceID); err != nil {
				_ = tx.Rollback()
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET primary_encoding_id = NULL WHERE id = ?`, faceID); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	return tx.Commit()
}

// SetPrimaryEncoding sets a FaceID's user-chosen preview encoding.
func (d *Database) SetPrimaryEncoding(ctx context.Context, faceID, encodingID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var owner int64
	if err := d.sqlx.GetContext(ctx, &owner, `SELECT face_id FROM face_encodings WHERE id = ?`, encodingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != faceID {
		return errors.New("encoding does not belong to face")
	}
	_, err := d.sqlx.ExecContext(ctx, `UPDATE face_ids SET primary_encoding_id = ? WHERE id = ?`, encodingID, faceID)
	return err
}

// ListEncodingsForFace returns every encoding belonging to a FaceID,
// primary first then insertion order.
func (d *Database) ListEncodingsForFace(ctx context.Context, faceID int64) ([]FaceEncoding, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var encodings []FaceEncoding
	err := d.sqlx.SelectContext(ctx, &encodings, `
		SELECT fe.* FROM face_encodings fe
		JOIN face_ids f ON f.id = fe.face_id
		WHERE fe.face_id = ?
		ORDER BY (fe.id = f.primary_encoding_id) DESC, fe.id ASC
	`, faceID)
	return encodings, err
}

// AllEncodings returns every FaceEncoding in the catalog, for a linear
// cosine-similarity scan. An ANN index may replace this later without
// changing the call signature.
func (d *Database) AllEncodings(ctx context.Context, excludeFaceID *int64) ([]FaceEncoding, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `SELECT * FROM face_encodings`
	var args []interface{}
	if excludeFaceID != nil {
		query += ` WHERE face_id != ?`
		args = append(args, *excludeFaceID)
	}
	var encodings []FaceEncoding
	err := d.sqlx.SelectContext(ctx, &encodings, query, args...)
	return encodings, err
}

// UpsertVideoFace inserts a new VideoFace link with appearance_count=1, or
// increments appearance_count on an existing one.
func (d *Database) UpsertVideoFace(ctx context.Context, mediaItemID, faceID int64, method string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sqlx.ExecContext(ctx, `
		INSERT INTO video_faces (media_item_id, face_id, detection_method, appearance_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(media_item_id, face_id) DO UPDATE SET appearance_count = appearance_count + 1
	`, mediaItemID, faceID, method)
	return err
}

// VideoFacesForItem returns the faces linked to one MediaItem.
func (d *Database) VideoFacesForItem(ctx context.Context, mediaItemID int64) ([]VideoFace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var links []VideoFace
	err := d.sqlx.SelectContext(ctx, &links, `SELECT * FROM video_faces WHERE media_item_id = ?`, mediaItemID)
	return links, err
}

// BatchVideoFaces returns every VideoFace row for the given media item ids
// joined with FaceID, in one query instead of one-per-item.
type VideoFaceSummary struct {
	MediaItemID int64  `db:"media_item_id"`
	FaceID      int64  `db:"face_id"`
	FaceName    string `db:"face_name"`
}

func (d *Database) BatchVideoFaces(ctx context.Context, mediaItemIDs []int64) ([]VideoFaceSummary, error) {
	if len(mediaItemIDs) == 0 {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	query, args, err := sqlxIn(`
		SELECT vf.media_item_id, vf.face_id, f.name AS face_name
		FROM video_faces vf
		JOIN face_ids f ON f.id = vf.face_id
		WHERE vf.media_item_id IN (?)
	`, mediaItemIDs)
	if err != nil {
		return nil, err
	}
	var rows []VideoFaceSummary
	err = d.sqlx.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

// DeleteEmptyFaceIDs removes every FaceID with zero encodings AND zero
// VideoFace links (either alone is not sufficient).
func (d *Database) DeleteEmptyFaceIDs(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `
		DELETE FROM face_ids
		WHERE encoding_count = 0
		  AND id NOT IN (SELECT DISTINCT face_id FROM video_faces)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MergeFaces reparents encodings from sourceIDs onto targetID, folds
// VideoFace appearance counts, and deletes the source FaceIDs, all inside
// one transaction.
func (d *Database) MergeFaces(ctx context.Context, targetID int64, sourceIDs []int64, newName *string, newActorID *int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, srcID := range sourceIDs {
		if srcID == targetID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE face_encodings SET face_id = ? WHERE face_id = ?`, targetID, srcID); err != nil {
			_ = tx.Rollback()
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT media_item_id, appearance_count, detection_method FROM video_faces WHERE face_id = ?`, srcID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		type link struct {
			videoID int64
			count   int
			method  string
		}
		var links []link
		for rows.Next() {
			var l link
			if err := rows.Scan(&l.videoID, &l.count, &l.method); err != nil {
				_ = rows.Close()
				_ = tx.Rollback()
				return err
			}
			links = append(links, l)
		}
		_ = rows.Close()

		for _, l := range links {
			var existingCount sql.NullInt64
			err := tx.QueryRowContext(ctx, `SELECT appearance_count FROM video_faces WHERE media_item_id = ? AND face_id = ?`, l.videoID, targetID).Scan(&existingCount)
			if errors.Is(err, sql.ErrNoRows) {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO video_faces (media_item_id, face_id, detection_method, appearance_count) VALUES (?, ?, ?, ?)
				`, l.videoID, targetID, l.method, l.count); err != nil {
					_ = tx.Rollback()
					return err
				}
			} else if err != nil {
				_ = tx.Rollback()
				return err
			} else {
				if _, err := tx.ExecContext(ctx, `
					UPDATE video_faces SET appearance_count = appearance_count + ? WHERE media_item_id = ? AND face_id = ?
				`, l.count, l.videoID, targetID); err != nil {
					_ = tx.Rollback()
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM video_faces WHERE face_id = ?`, srcID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_ids WHERE id = ?`, srcID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	// Recompute encoding_count and promote a primary for the target.
	if _, err := tx.ExecContext(ctx, `
		UPDATE face_ids SET encoding_count = (SELECT COUNT(*) FROM face_encodings WHERE face_id = ?) WHERE id = ?
	`, targetID, targetID); err != nil {
		_ = tx.Rollback()
		return err
	}
	var primary sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT primary_encoding_id FROM face_ids WHERE id = ?`, targetID).Scan(&primary); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !primary.Valid {
		var bestID sql.NullInt64
		_ = tx.QueryRowContext(ctx, `
			SELECT id FROM face_encodings WHERE face_id = ?
			ORDER BY quality_score DESC NULLS LAST, confidence DESC NULLS LAST LIMIT 1
		`, targetID).Scan(&bestID)
		if bestID.Valid {
			if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET primary_encoding_id = ? WHERE id = ?`, bestID.Int64, targetID); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	if newName != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET name = ? WHERE id = ?`, *newName, targetID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if newActorID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE face_ids SET actor_id = ? WHERE id = ?`, *newActorID, targetID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
