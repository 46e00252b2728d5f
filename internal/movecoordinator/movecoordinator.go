// Package movecoordinator is the single entry point for any change to a
// MediaItem's on-disk location or name: move, rename, folder rename, hash
// rename, soft delete and permanent delete. Every operation follows the same
// shape as the teacher's transcoder cache path: do the filesystem step
// first, then the database step, and compensate the filesystem step if the
// database step fails.
package movecoordinator

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"clipper/internal/database"
	"clipper/internal/logging"
)

// DeleteCategory is the virtual category soft-deleted items are moved into.
const DeleteCategory = "DELETE"

// rootCategory is the virtual category name meaning "the root itself", used
// for items that live directly under the active root with no category
// subfolder.
const rootCategory = "_root"

var (
	// ErrSourceNotFound means the MediaItem's recorded path no longer
	// exists on disk.
	ErrSourceNotFound = errors.New("movecoordinator: source file not found")
	// ErrDestinationExists means the computed destination path is already
	// occupied.
	ErrDestinationExists = errors.New("movecoordinator: destination already exists")
	// ErrInvalidCategory means a category name contains a path separator.
	ErrInvalidCategory = errors.New("movecoordinator: category name must not contain a path separator")
	// ErrNotInDeleteCategory means a permanent-delete was attempted on an
	// item outside the DELETE category.
	ErrNotInDeleteCategory = errors.New("movecoordinator: permanent delete requires the item be in the DELETE category")
	// ErrSubdirectoryRename means a folder rename was attempted on
	// something other than a top-level category.
	ErrSubdirectoryRename = errors.New("movecoordinator: folder rename only applies to top-level categories")
)

// ThumbnailRehasher is the boundary to the thumbnail cache's rehash
// operation, kept as an interface so the coordinator doesn't import the
// thumbnail store directly.
type ThumbnailRehasher interface {
	Rehash(ctx context.Context, oldPath, newPath string) error
}

// Coordinator performs filesystem moves under one active root and keeps the
// catalog and thumbnail cache in step with them.
type Coordinator struct {
	db     *database.Database
	thumbs ThumbnailRehasher
	root   string
}

// New constructs a Coordinator rooted at root. thumbs may be nil, in which
// case rehashing is skipped (the thumbnail cache will regenerate lazily).
func New(db *database.Database, thumbs ThumbnailRehasher, root string) *Coordinator {
	return &Coordinator{db: db, thumbs: thumbs, root: root}
}

func validCategoryName(category string) bool {
	return category != "" && !strings.ContainsAny(category, `/\`)
}

// categoryDir resolves a category name to its directory under the active
// root; rootCategory resolves to the root itself.
func (c *Coordinator) categoryDir(category string) string {
	if category == rootCategory {
		return c.root
	}
	return filepath.Join(c.root, category)
}

func (c *Coordinator) destination(category, subcategory, name string) string {
	dir := c.categoryDir(category)
	if subcategory != "" {
		dir = filepath.Join(dir, subcategory)
	}
	return filepath.Join(dir, name)
}

func relativePath(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// Move relocates item id to targetCategory/targetSubcategory, optionally
// renaming it. An empty newName keeps the current name; a newName with no
// extension inherits the source file's extension.
func (c *Coordinator) Move(ctx context.Context, id int64, targetCategory, targetSubcategory, newName string) (*database.MediaItem, error) {
	if !validCategoryName(targetCategory) && targetCategory != rootCategory {
		return nil, ErrInvalidCategory
	}

	item, err := c.db.GetMediaItem(ctx, id)
	if err != nil {
		return nil, err
	}

	name := newName
	if name == "" {
		name = item.Name
	} else if filepath.Ext(name) == "" {
		name += item.Extension
	}

	destDir := c.categoryDir(targetCategory)
	if targetSubcategory != "" {
		destDir = filepath.Join(destDir, targetSubcategory)
	}
	dest := filepath.Join(destDir, name)

	if _, err := os.Stat(item.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, item.Path)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("movecoordinator: create destination directory: %w", err)
	}

	if err := os.Rename(item.Path, dest); err != nil {
		return nil, fmt.Errorf("movecoordinator: rename %q to %q: %w", item.Path, dest, err)
	}

	if c.thumbs != nil {
		if err := c.thumbs.Rehash(ctx, item.Path, dest); err != nil {
			logging.Warn("movecoordinator: thumbnail rehash failed for %q -> %q: %v", item.Path, dest, err)
		}
	}

	info, statErr := os.Stat(dest)
	var size, mtime int64
	if statErr == nil {
		size = info.Size()
		mtime = info.ModTime().Unix()
	}

	var subPtr *string
	if targetSubcategory != "" {
		subPtr = &targetSubcategory
	}
	rel := relativePath(c.categoryDir(targetCategory), dest)

	if err := c.db.UpdatePathAndLocation(ctx, id, dest, name, targetCategory, subPtr, rel, size, mtime, filepath.Ext(name)); err != nil {
		if revErr := os.Rename(dest, item.Path); revErr != nil {
			logging.Error("movecoordinator: failed to reverse filesystem move after db error for %q: %v", item.Path, revErr)
		}
		return nil, fmt.Errorf("movecoordinator: update catalog after move: %w", err)
	}

	return c.db.GetMediaItem(ctx, id)
}

// Rename changes a MediaItem's name in place, keeping its category and
// subcategory.
func (c *Coordinator) Rename(ctx context.Context, id int64, newName string) (*database.MediaItem, error) {
	item, err := c.db.GetMediaItem(ctx, id)
	if err != nil {
		return nil, err
	}
	subcategory := ""
	if item.Subcategory != nil {
		subcategory = *item.Subcategory
	}
	return c.Move(ctx, id, item.Category, subcategory, newName)
}

// FolderRename renames a top-level category directory and bulk-updates every
// MediaItem it contains, then rehashes every affected thumbnail key.
// Subdirectories (non-top-level categories) are refused.
func (c *Coordinator) FolderRename(ctx context.Context, oldCategory, newCategory string) error {
	if !validCategoryName(oldCategory) || !validCategoryName(newCategory) {
		return ErrSubdirectoryRename
	}

	oldDir := c.categoryDir(oldCategory)
	newDir := c.categoryDir(newCategory)

	if _, err := os.Stat(oldDir); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, oldDir)
	}
	if _, err := os.Stat(newDir); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, newDir)
	}

	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("movecoordinator: rename folder %q to %q: %w", oldDir, newDir, err)
	}

	items, err := c.db.RenameCategoryBulk(ctx, oldCategory, newCategory, oldDir, newDir)
	if err != nil {
		if revErr := os.Rename(newDir, oldDir); revErr != nil {
			logging.Error("movecoordinator: failed to reverse folder rename after db error for %q: %v", oldDir, revErr)
		}
		return fmt.Errorf("movecoordinator: bulk update catalog after folder rename: %w", err)
	}

	if c.thumbs != nil {
		for _, item := range items {
			newPath := newDir + strings.TrimPrefix(item.Path, oldDir)
			if err := c.thumbs.Rehash(ctx, item.Path, newPath); err != nil {
				logging.Warn("movecoordinator: thumbnail rehash failed for %q -> %q: %v", item.Path, newPath, err)
			}
		}
	}

	if err := c.db.RenameFolderScanStatus(ctx, oldCategory, newCategory); err != nil {
		logging.Warn("movecoordinator: failed to rename folder scan status %q -> %q: %v", oldCategory, newCategory, err)
	}
	return nil
}

// hashRenamePermutation builds the 16-character identifier from a 40-char
// hex SHA-1 digest: nibbles 0-3, then 4-7, then {2,4,6,10}, then
// {10,6,4,2}.
func hashRenamePermutation(hexDigest string) string {
	var b strings.Builder
	b.WriteString(hexDigest[0:4])
	b.WriteString(hexDigest[4:8])
	for _, i := range []int{2, 4, 6, 10} {
		b.WriteByte(hexDigest[i])
	}
	for _, i := range []int{10, 6, 4, 2} {
		b.WriteByte(hexDigest[i])
	}
	return b.String()
}

// HashRename computes the SHA-1 of item id's contents and renames it to
// <identifier><ext>, setting display_name to the identifier. A destination
// collision is refused rather than overwritten.
func (c *Coordinator) HashRename(ctx context.Context, id int64) (*database.MediaItem, error) {
	item, err := c.db.GetMediaItem(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(item.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, item.Path)
	}
	h := sha1.New()
	_, copyErr := io.Copy(h, f)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("movecoordinator: hash %q: %w", item.Path, copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("movecoordinator: hash %q: %w", item.Path, closeErr)
	}

	identifier := hashRenamePermutation(fmt.Sprintf("%x", h.Sum(nil)))
	name := identifier + item.Extension

	dir := filepath.Dir(item.Path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}

	if err := os.Rename(item.Path, dest); err != nil {
		return nil, fmt.Errorf("movecoordinator: hash rename %q to %q: %w", item.Path, dest, err)
	}

	if c.thumbs != nil {
		if err := c.thumbs.Rehash(ctx, item.Path, dest); err != nil {
			logging.Warn("movecoordinator: thumbnail rehash failed for %q -> %q: %v", item.Path, dest, err)
		}
	}

	rel := relativePath(c.categoryDir(item.Category), dest)
	if err := c.db.UpdatePathAndLocation(ctx, id, dest, name, item.Category, item.Subcategory, rel, item.Size, item.Mtime, item.Extension); err != nil {
		if revErr := os.Rename(dest, item.Path); revErr != nil {
			logging.Error("movecoordinator: failed to reverse hash rename after db error for %q: %v", item.Path, revErr)
		}
		return nil, fmt.Errorf("movecoordinator: update catalog after hash rename: %w", err)
	}
	if err := c.db.UpdateDisplayName(ctx, id, identifier); err != nil {
		logging.Warn("movecoordinator: failed to set display name after hash rename for id %d: %v", id, err)
	}

	return c.db.GetMediaItem(ctx, id)
}

// SoftDelete moves item id into the DELETE category, preserving its original
// category in the returned item's metadata for an undo UI (via the caller,
// who already has the pre-move item).
func (c *Coordinator) SoftDelete(ctx context.Context, id int64) (item *database.MediaItem, originalCategory string, err error) {
	before, err := c.db.GetMediaItem(ctx, id)
	if err != nil {
		return nil, "", err
	}
	originalCategory = before.Category

	moved, err := c.Move(ctx, id, DeleteCategory, "", before.Name)
	if err != nil {
		return nil, originalCategory, err
	}
	return moved, originalCategory, nil
}

// HardDelete permanently removes item id: its file from disk and its
// catalog row, cascading to dependent rows. Refused unless the item's
// current category is DELETE.
func (c *Coordinator) HardDelete(ctx context.Context, id int64) error {
	item, err := c.db.GetMediaItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Category != DeleteCategory {
		return ErrNotInDeleteCategory
	}

	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("movecoordinator: remove %q: %w", item.Path, err)
	}
	return c.db.DeleteMediaItem(ctx, id)
}
