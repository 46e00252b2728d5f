package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// CreateFolderGroup creates a user-defined sidebar grouping. The id is a
// UUID so references survive rename/reorder without renumbering.
func (d *Database) CreateFolderGroup(ctx context.Context, name string, categories []string, icon, color *string) (*FolderGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	catsJSON, err := json.Marshal(categories)
	if err != nil {
		return nil, err
	}

	var maxOrdinal sql.NullInt64
	if err := d.sqlx.GetContext(ctx, &maxOrdinal, `SELECT MAX(ordinal) FROM folder_groups`); err != nil {
		return nil, err
	}
	ordinal := 0
	if maxOrdinal.Valid {
		ordinal = int(maxOrdinal.Int64) + 1
	}

	id := uuid.NewString()
	_, err = d.sqlx.ExecContext(ctx, `
		INSERT INTO folder_groups (id, name, categories, icon, color, ordinal, is_system)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, id, name, string(catsJSON), icon, color, ordinal)
	if err != nil {
		return nil, err
	}

	return &FolderGroup{ID: id, Name: name, Categories: string(catsJSON), Icon: icon, Color: color, Ordinal: ordinal}, nil
}

// GetFolderGroup fetches one group by id.
func (d *Database) GetFolderGroup(ctx context.Context, id string) (*FolderGroup, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var g FolderGroup
	err := d.sqlx.GetContext(ctx, &g, `SELECT * FROM folder_groups WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListFolderGroups returns every group ordered for sidebar display.
func (d *Database) ListFolderGroups(ctx context.Context) ([]FolderGroup, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var groups []FolderGroup
	err := d.sqlx.SelectContext(ctx, &groups, `SELECT * FROM folder_groups ORDER BY ordinal ASC`)
	return groups, err
}

// UpdateFolderGroup updates name, membership, icon, and/or color. System
// groups (is_system=1) may have their categories edited but not be renamed
// or deleted.
func (d *Database) UpdateFolderGroup(ctx context.Context, id string, name *string, categories []string, icon, color *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var isSystem bool
	if err := d.sqlx.GetContext(ctx, &isSystem, `SELECT is_system FROM folder_groups WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if name != nil && !isSystem {
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE folder_groups SET name = ? WHERE id = ?`, *name, id); err != nil {
			return err
		}
	}
	if categories != nil {
		catsJSON, err := json.Marshal(categories)
		if err != nil {
			return err
		}
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE folder_groups SET categories = ? WHERE id = ?`, string(catsJSON), id); err != nil {
			return err
		}
	}
	if icon != nil {
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE folder_groups SET icon = ? WHERE id = ?`, *icon, id); err != nil {
			return err
		}
	}
	if color != nil {
		if _, err := d.sqlx.ExecContext(ctx, `UPDATE folder_groups SET color = ? WHERE id = ?`, *color, id); err != nil {
			return err
		}
	}
	return nil
}

// ReorderFolderGroups applies a full new ordinal sequence in one
// transaction, identified by the caller's desired id order.
func (d *Database) ReorderFolderGroups(ctx context.Context, orderedIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE folder_groups SET ordinal = ? WHERE id = ?`, i, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteFolderGroup removes a user-defined group. System groups cannot be
// deleted.
func (d *Database) DeleteFolderGroup(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var isSystem bool
	if err := d.sqlx.GetContext(ctx, &isSystem, `SELECT is_system FROM folder_groups WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if isSystem {
		return errors.New("system folder group cannot be deleted")
	}
	_, err := d.sqlx.ExecContext(ctx, `DELETE FROM folder_groups WHERE id = ?`, id)
	return err
}

// ListFolderScanStatuses returns the reconciler's last-run status for
// every known category, for the sidebar's per-folder badge.
func (d *Database) ListFolderScanStatuses(ctx context.Context) ([]FolderScanStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var rows []FolderScanStatus
	err := d.sqlx.SelectContext(ctx, &rows, `SELECT * FROM folder_scan_status ORDER BY category`)
	return rows, err
}

// DistinctCategories returns every category currently present in the
// catalog, for folder/breadcrumb listing independent of scan status.
func (d *Database) DistinctCategories(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var cats []string
	err := d.sqlx.SelectContext(ctx, &cats, `SELECT DISTINCT category FROM media_items ORDER BY category`)
	return cats, err
}

// DistinctSubcategories returns every subcategory under one category.
func (d *Database) DistinctSubcategories(ctx context.Context, category string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var subs []string
	err := d.sqlx.SelectContext(ctx, &subs, `
		SELECT DISTINCT subcategory FROM media_items
		WHERE category = ? AND subcategory IS NOT NULL
		ORDER BY subcategory
	`, category)
	return subs, err
}
