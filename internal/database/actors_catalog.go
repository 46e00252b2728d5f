package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// EnsureActor returns the id of the actor named name (case-insensitively
// unique, title-cased for display), creating it if needed.
func (d *Database) EnsureActor(ctx context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("actor name must not be empty")
	}
	display := titleCase(name)

	var id int64
	err := d.sqlx.GetContext(ctx, &id, `SELECT id FROM actors WHERE name = ? COLLATE NOCASE`, display)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := d.sqlx.ExecContext(ctx, `INSERT INTO actors (name) VALUES (?)`, display)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

// LinkMediaItemActor links a MediaItem to an actor and maintains the
// denormalized video_count invariant.
func (d *Database) LinkMediaItemActor(ctx context.Context, mediaItemID, actorID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `INSERT OR IGNORE INTO media_item_actors (media_item_id, actor_id) VALUES (?, ?)`, mediaItemID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = d.sqlx.ExecContext(ctx, `UPDATE actors SET video_count = video_count + 1 WHERE id = ?`, actorID)
	}
	return err
}

// UnlinkMediaItemActor removes the link and decrements video_count.
func (d *Database) UnlinkMediaItemActor(ctx context.Context, mediaItemID, actorID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `DELETE FROM media_item_actors WHERE media_item_id = ? AND actor_id = ?`, mediaItemID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = d.sqlx.ExecContext(ctx, `UPDATE actors SET video_count = MAX(0, video_count - 1) WHERE id = ?`, actorID)
	}
	return err
}

// MediaItemActors returns the actor names linked to a MediaItem.
func (d *Database) MediaItemActors(ctx context.Context, mediaItemID int64) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	err := d.sqlx.SelectContext(ctx, &names, `
		SELECT a.name FROM actors a
		JOIN media_item_actors mia ON mia.actor_id = a.id
		WHERE mia.media_item_id = ?
		ORDER BY a.name
	`, mediaItemID)
	return names, err
}

// BatchMediaItemActors returns actor names keyed by media item id.
func (d *Database) BatchMediaItemActors(ctx context.Context, mediaItemIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(mediaItemIDs))
	if len(mediaItemIDs) == 0 {
		return result, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	query, args, err := sqlxIn(`
		SELECT mia.media_item_id, a.name FROM actors a
		JOIN media_item_actors mia ON mia.actor_id = a.id
		WHERE mia.media_item_id IN (?)
		ORDER BY a.name
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

// GetActor fetches one actor by id.
func (d *Database) GetActor(ctx context.Context, id int64) (*CatalogActor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var a CatalogActor
	err := d.sqlx.GetContext(ctx, &a, `SELECT * FROM actors WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActors returns every actor ordered by name.
func (d *Database) ListActors(ctx context.Context) ([]CatalogActor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var actors []CatalogActor
	err := d.sqlx.SelectContext(ctx, &actors, `SELECT * FROM actors ORDER BY name COLLATE NOCASE`)
	return actors, err
}

// UpdateActorNotes updates an actor's free-text notes.
func (d *Database) UpdateActorNotes(ctx context.Context, id int64, notes string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.sqlx.ExecContext(ctx, `UPDATE actors SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
