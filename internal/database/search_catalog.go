package database

import (
	"context"
	"strconv"
	"strings"
)

// CatalogSearchOptions are the structured + full-text filters C12 supports.
type CatalogSearchOptions struct {
	Query           string
	Tags            []string
	Category        string
	Subcategory     string
	DurationMin     *float64
	DurationMax     *float64
	IncludeDeleted  bool
	Page            int
	PageSize        int
}

// CatalogSearchResult is one page of MediaItems with their tags, actors,
// and face summary batch-loaded alongside.
type CatalogSearchResult struct {
	Items      []MediaItem
	Total      int64
	Page       int
	PageSize   int
	FaceSummary map[int64][]VideoFaceSummary
}

// CatalogSearch implements the structured + full-text query over the
// catalog. Results carry loaded tags, actors, and a batched face summary
// rather than requiring N follow-up queries per item.
func (d *Database) CatalogSearch(ctx context.Context, opts CatalogSearchOptions) (*CatalogSearchResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var where []string
	var args []interface{}

	if !opts.IncludeDeleted {
		where = append(where, `m.category != 'DELETE'`)
	}
	if opts.Category != "" {
		where = append(where, `m.category = ?`)
		args = append(args, opts.Category)
	}
	if opts.Subcategory != "" {
		where = append(where, `m.subcategory = ?`)
		args = append(args, opts.Subcategory)
	}
	if opts.DurationMin != nil {
		where = append(where, `m.duration >= ?`)
		args = append(args, *opts.DurationMin)
	}
	if opts.DurationMax != nil {
		where = append(where, `m.duration <= ?`)
		args = append(args, *opts.DurationMax)
	}

	q := strings.TrimSpace(opts.Query)
	if q != "" {
		like := "%" + q + "%"
		textMatch := `(
			m.name LIKE ? COLLATE NOCASE OR
			m.display_name LIKE ? COLLATE NOCASE OR
			m.description LIKE ? COLLATE NOCASE OR
			m.series LIKE ? COLLATE NOCASE OR
			m.episode LIKE ? COLLATE NOCASE OR
			m.channel LIKE ? COLLATE NOCASE OR
			EXISTS (SELECT 1 FROM media_item_tags mit JOIN tags t ON t.id = mit.tag_id WHERE mit.media_item_id = m.id AND t.name LIKE ? COLLATE NOCASE) OR
			EXISTS (SELECT 1 FROM media_item_actors mia JOIN actors a ON a.id = mia.actor_id WHERE mia.media_item_id = m.id AND a.name LIKE ? COLLATE NOCASE)`
		qArgs := []interface{}{like, like, like, like, like, like, like, like}
		if year, err := strconv.Atoi(q); err == nil {
			textMatch += ` OR m.year = ?`
			qArgs = append(qArgs, year)
		}
		textMatch += `)`
		where = append(where, textMatch)
		args = append(args, qArgs...)
	}

	for _, tag := range opts.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		where = append(where, `EXISTS (SELECT 1 FROM media_item_tags mit JOIN tags t ON t.id = mit.tag_id WHERE mit.media_item_id = m.id AND t.name = ? COLLATE NOCASE)`)
		args = append(args, tag)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM media_items m ` + whereClause
	if err := d.sqlx.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, err
	}

	listQuery := `SELECT m.* FROM media_items m ` + whereClause + ` ORDER BY m.mtime DESC LIMIT ? OFFSET ?`
	listArgs := append(append([]interface{}{}, args...), pageSize, (page-1)*pageSize)

	var items []MediaItem
	if err := d.sqlx.SelectContext(ctx, &items, listQuery, listArgs...); err != nil {
		return nil, err
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	tagsByID, err := d.batchMediaItemTagsLocked(ctx, ids)
	if err != nil {
		return nil, err
	}
	actorsByID, err := d.batchMediaItemActorsLocked(ctx, ids)
	if err != nil {
		return nil, err
	}
	faces, err := d.batchVideoFacesLocked(ctx, ids)
	if err != nil {
		return nil, err
	}
	faceSummary := make(map[int64][]VideoFaceSummary)
	for _, f := range faces {
		faceSummary[f.MediaItemID] = append(faceSummary[f.MediaItemID], f)
	}

	for i := range items {
		items[i].Tags = tagsByID[items[i].ID]
		items[i].Actors = actorsByID[items[i].ID]
	}

	return &CatalogSearchResult{
		Items:       items,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
		FaceSummary: faceSummary,
	}, nil
}

// CatalogSuggestion is one distinct value with its usage count.
type CatalogSuggestion struct {
	Value string `db:"value"`
	Count int    `db:"count"`
}

// CatalogSuggestions exposes distinct values of channel, series, or year
// with usage counts, descending by count, excluding null/empty.
func (d *Database) CatalogSuggestions(ctx context.Context, field string, limit int) ([]CatalogSuggestion, error) {
	var column string
	switch field {
	case "channel":
		column = "channel"
	case "series":
		column = "series"
	case "year":
		column = "year"
	default:
		column = "channel"
	}
	if limit <= 0 {
		limit = 20
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var rows []CatalogSuggestion
	query := `
		SELECT ` + column + ` AS value, COUNT(*) AS count
		FROM media_items
		WHERE ` + column + ` IS NOT NULL AND ` + column + ` != ''
		GROUP BY ` + column + `
		ORDER BY count DESC
		LIMIT ?
	`
	err := d.sqlx.SelectContext(ctx, &rows, query, limit)
	return rows, err
}

// The following *Locked helpers duplicate the batch-fetch queries from
// tags_catalog.go/actors_catalog.go/faces_catalog.go without re-acquiring
// d.mu, since CatalogSearch already holds the read lock.

func (d *Database) batchMediaItemTagsLocked(ctx context.Context, ids []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlxIn(`
		SELECT mit.media_item_id, t.name FROM tags t
		JOIN media_item_tags mit ON mit.tag_id = t.id
		WHERE mit.media_item_id IN (?)
		ORDER BY t.name
	`, ids)
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

func (d *Database) batchMediaItemActorsLocked(ctx context.Context, ids []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlxIn(`
		SELECT mia.media_item_id, a.name FROM actors a
		JOIN media_item_actors mia ON mia.actor_id = a.id
		WHERE mia.media_item_id IN (?)
		ORDER BY a.name
	`, ids)
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

func (d *Database) batchVideoFacesLocked(ctx context.Context, ids []int64) ([]VideoFaceSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlxIn(`
		SELECT vf.media_item_id, vf.face_id, f.name AS face_name
		FROM video_faces vf
		JOIN face_ids f ON f.id = vf.face_id
		WHERE vf.media_item_id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}
	var rows []VideoFaceSummary
	err = d.sqlx.SelectContext(ctx, &rows, query, args...)
	return rows, err
}
