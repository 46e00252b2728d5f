package database

import (
	"context"
	"fmt"

	"clipper/internal/logging"
)

// catalogSchema holds the media-library entities (MediaItem, Tag, Actor,
// FaceID, FaceEncoding, VideoFace, VideoFingerprint, FolderGroup,
// FolderScanStatus) layered on top of the generic file-browser tables
// defined in initialize(). It is additive: every statement is
// CREATE-TABLE/INDEX-IF-NOT-EXISTS, matching the "inspect schema; add
// missing columns/indexes/tables additively; never drop user data"
// migration contract.
const catalogSchema = `
CREATE TABLE IF NOT EXISTS media_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	display_name TEXT,
	description TEXT,
	category TEXT NOT NULL,
	subcategory TEXT,
	relative_path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	mtime INTEGER NOT NULL DEFAULT 0,
	extension TEXT NOT NULL DEFAULT '',
	media_type TEXT NOT NULL,
	duration REAL,
	width INTEGER,
	height INTEGER,
	codec TEXT,
	bitrate INTEGER,
	fps REAL,
	thumbnail_generated TEXT NOT NULL DEFAULT 'none',
	thumbnail_updated_at INTEGER NOT NULL DEFAULT 0,
	fingerprint_generated INTEGER NOT NULL DEFAULT 0,
	fingerprinted_at INTEGER,
	series TEXT,
	season INTEGER,
	episode TEXT,
	year INTEGER,
	channel TEXT,
	rating INTEGER,
	favorite INTEGER NOT NULL DEFAULT 0,
	is_final INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_media_items_category_subcategory ON media_items(category, subcategory);
CREATE INDEX IF NOT EXISTS idx_media_items_media_type ON media_items(media_type);
CREATE INDEX IF NOT EXISTS idx_media_items_thumbnail_generated ON media_items(thumbnail_generated);
CREATE INDEX IF NOT EXISTS idx_media_items_mtime ON media_items(mtime);
CREATE INDEX IF NOT EXISTS idx_media_items_fingerprint_generated ON media_items(fingerprint_generated);
CREATE INDEX IF NOT EXISTS idx_media_items_series_season ON media_items(series, season);
CREATE INDEX IF NOT EXISTS idx_media_items_year ON media_items(year);
CREATE INDEX IF NOT EXISTS idx_media_items_favorite ON media_items(favorite);
CREATE INDEX IF NOT EXISTS idx_media_items_is_final ON media_items(is_final);

CREATE TABLE IF NOT EXISTS media_item_tags (
	media_item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
	tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (media_item_id, tag_id)
);
CREATE INDEX IF NOT EXISTS idx_media_item_tags_tag ON media_item_tags(tag_id);

CREATE TABLE IF NOT EXISTS actors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE,
	notes TEXT,
	video_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS media_item_actors (
	media_item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
	actor_id INTEGER NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	PRIMARY KEY (media_item_id, actor_id)
);
CREATE INDEX IF NOT EXISTS idx_media_item_actors_actor ON media_item_actors(actor_id);

CREATE TABLE IF NOT EXISTS face_ids (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	actor_id INTEGER REFERENCES actors(id) ON DELETE SET NULL,
	encoding_count INTEGER NOT NULL DEFAULT 0,
	primary_encoding_id INTEGER,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS face_encodings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	face_id INTEGER NOT NULL REFERENCES face_ids(id) ON DELETE CASCADE,
	media_item_id INTEGER REFERENCES media_items(id) ON DELETE SET NULL,
	frame_timestamp REAL NOT NULL DEFAULT 0,
	encoding TEXT NOT NULL,
	encoding_hash TEXT NOT NULL,
	thumbnail TEXT,
	confidence REAL,
	quality_score REAL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	UNIQUE(face_id, encoding_hash)
);
CREATE INDEX IF NOT EXISTS idx_face_encodings_face_id ON face_encodings(face_id);
CREATE INDEX IF NOT EXISTS idx_face_encodings_media_item_id ON face_encodings(media_item_id);

CREATE TABLE IF NOT EXISTS video_faces (
	media_item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
	face_id INTEGER NOT NULL REFERENCES face_ids(id) ON DELETE CASCADE,
	first_detected_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	detection_method TEXT NOT NULL DEFAULT 'manual_search',
	appearance_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (media_item_id, face_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_video_faces_video_face ON video_faces(media_item_id, face_id);

CREATE TABLE IF NOT EXISTS video_fingerprints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
	frame_position INTEGER NOT NULL,
	phash TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE INDEX IF NOT EXISTS idx_video_fingerprints_phash ON video_fingerprints(phash);
CREATE INDEX IF NOT EXISTS idx_video_fingerprints_video_id ON video_fingerprints(media_item_id);

CREATE TABLE IF NOT EXISTS folder_groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	categories TEXT NOT NULL DEFAULT '[]',
	icon TEXT,
	color TEXT,
	ordinal INTEGER NOT NULL DEFAULT 0,
	is_system INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS folder_scan_status (
	category TEXT PRIMARY KEY,
	last_scanned INTEGER,
	video_count INTEGER NOT NULL DEFAULT 0,
	scan_duration REAL,
	is_scanned INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// initializeCatalogSchema creates the media-library schema additively and
// runs the one permitted destructive migration (widening
// face_encodings.media_item_id from NOT NULL to nullable, for catalogs
// created by an earlier schema revision that didn't yet allow orphaned
// encodings).
func (d *Database) initializeCatalogSchema(ctx context.Context) error {
	done := observeQuery("initialize_catalog_schema")
	_, err := d.db.ExecContext(ctx, catalogSchema)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return d.migrateFaceEncodingMediaItemNullable(ctx)
}

// migrateFaceEncodingMediaItemNullable performs the single destructive
// migration permitted by the catalog contract: if an existing
// face_encodings table has media_item_id declared NOT NULL, rebuild it
// behind a temporary name with the column nullable, copy all rows, then
// swap the names. Idempotent via the schema_meta version stamp.
func (d *Database) migrateFaceEncodingMediaItemNullable(ctx context.Context) error {
	const versionKey = "face_encodings_media_item_nullable"

	var already string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = ?`, versionKey).Scan(&already)
	if err == nil && already == "1" {
		return nil
	}

	var notNull int
	row := d.db.QueryRowContext(ctx, `
		SELECT "notnull" FROM pragma_table_info('face_encodings') WHERE name = 'media_item_id'
	`)
	if scanErr := row.Scan(&notNull); scanErr != nil {
		// Column missing entirely means the table was just created by
		// catalogSchema above, which already declares it nullable.
		_, _ = d.db.ExecContext(ctx, `INSERT OR REPLACE INTO schema_meta(key, value) VALUES (?, '1')`, versionKey)
		return nil
	}

	if notNull == 0 {
		_, _ = d.db.ExecContext(ctx, `INSERT OR REPLACE INTO schema_meta(key, value) VALUES (?, '1')`, versionKey)
		return nil
	}

	logging.Info("Migrating database: widening face_encodings.media_item_id to nullable (copy-swap)")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin face_encodings migration: %w", err)
	}

	steps := []string{
		`ALTER TABLE face_encodings RENAME TO face_encodings_old`,
		`CREATE TABLE face_encodings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			face_id INTEGER NOT NULL REFERENCES face_ids(id) ON DELETE CASCADE,
			media_item_id INTEGER REFERENCES media_items(id) ON DELETE SET NULL,
			frame_timestamp REAL NOT NULL DEFAULT 0,
			encoding TEXT NOT NULL,
			encoding_hash TEXT NOT NULL,
			thumbnail TEXT,
			confidence REAL,
			quality_score REAL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			UNIQUE(face_id, encoding_hash)
		)`,
		`INSERT INTO face_encodings SELECT * FROM face_encodings_old`,
		`DROP TABLE face_encodings_old`,
		`CREATE INDEX IF NOT EXISTS idx_face_encodings_face_id ON face_encodings(face_id)`,
		`CREATE INDEX IF NOT EXISTS idx_face_encodings_media_item_id ON face_encodings(media_item_id)`,
	}

	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("face_encodings migration step failed: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_meta(key, value) VALUES (?, '1')`, versionKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("stamp schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit face_encodings migration: %w", err)
	}

	logging.Info("Migration complete: face_encodings.media_item_id is now nullable")
	return nil
}
