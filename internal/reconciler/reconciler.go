// Package reconciler brings the catalog database into agreement with the
// filesystem for one category at a time, using internal/scanfs for disk
// truth and internal/database's bulk delete-then-upsert primitives for the
// write side.
package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"clipper/internal/database"
	"clipper/internal/logging"
	"clipper/internal/metrics"
	"clipper/internal/scanfs"
)

// ThumbnailGenerator is the boundary to the thumbnail cache's generate
// operation, kept as an interface so the reconciler doesn't import the
// thumbnail store directly.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, mediaItemID int64, path string, force bool) error
}

// DefaultSmartRefreshBudget bounds how long one SmartRefresh call spends
// generating thumbnails before leaving the rest for on-demand generation.
const DefaultSmartRefreshBudget = 30 * time.Second

// Reconciler ties a Scanner to a Database and an optional thumbnail
// generator.
type Reconciler struct {
	db      *database.Database
	scanner *scanfs.Scanner
	thumbs  ThumbnailGenerator
}

// New constructs a Reconciler. thumbs may be nil; SmartRefresh then behaves
// like FastScan.
func New(db *database.Database, scanner *scanfs.Scanner, thumbs ThumbnailGenerator) *Reconciler {
	if scanner == nil {
		scanner = scanfs.New(nil)
	}
	return &Reconciler{db: db, scanner: scanner, thumbs: thumbs}
}

// Result reports what a scan pass did.
type Result struct {
	VideosFound int
	ImagesFound int
	Inserted    int
	Updated     int
	Deleted     int
	Duration    time.Duration
}

// FastScan recursively scans categoryDir (named category) and reconciles
// the catalog: bulk-deletes DB rows no longer on disk, then upserts every
// disk file, stamping thumbnail_updated_at on every touched row as a
// cache-bust signal. No thumbnail or metadata generation.
func (r *Reconciler) FastScan(ctx context.Context, categoryDir, category string) (*Result, error) {
	start := time.Now()
	files, err := r.scanner.Recursive(categoryDir, category)
	if err != nil {
		return nil, fmt.Errorf("scan category %q: %w", category, err)
	}

	result := &Result{}
	keep := make([]string, 0, len(files))
	for _, f := range files {
		keep = append(keep, f.Path)
		if f.MediaType == scanfs.MediaTypeVideo {
			result.VideosFound++
		} else {
			result.ImagesFound++
		}
	}

	deleted, err := r.db.DeletePathsNotIn(ctx, category, keep)
	if err != nil {
		return nil, fmt.Errorf("prune category %q: %w", category, err)
	}
	result.Deleted = int(deleted)

	for _, f := range files {
		_, created, err := r.db.UpsertScannedItem(ctx, toScanFields(f), true)
		if err != nil {
			return nil, fmt.Errorf("upsert %q: %w", f.Path, err)
		}
		if created {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	result.Duration = time.Since(start)
	if err := r.db.UpsertFolderScanStatus(ctx, category, result.VideosFound, result.Duration); err != nil {
		logging.Warn("reconciler: failed to record scan status for %q: %v", category, err)
	}
	metrics.ReconcilerScansTotal.WithLabelValues("fast").Inc()
	metrics.ReconcilerScanDuration.WithLabelValues("fast").Observe(result.Duration.Seconds())
	return result, nil
}

// SmartRefresh runs FastScan, then generates thumbnails for items whose
// thumbnail_generated is not "ok", bounded by budget. A budget <= 0 skips
// the generation pass entirely, leaving every pending item for later
// on-demand generation; callers wanting the default window pass
// DefaultSmartRefreshBudget explicitly.
func (r *Reconciler) SmartRefresh(ctx context.Context, categoryDir, category string, budget time.Duration) (*Result, error) {
	result, err := r.FastScan(ctx, categoryDir, category)
	if err != nil {
		return nil, err
	}
	if r.thumbs == nil || budget <= 0 {
		return result, nil
	}

	pending, err := r.db.ItemsNeedingThumbnail(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list items needing thumbnail in %q: %w", category, err)
	}

	deadline := time.Now().Add(budget)
	generated := 0
	for _, item := range pending {
		if time.Now().After(deadline) {
			logging.Info("reconciler: smart refresh budget exhausted for %q, %d/%d thumbnails left for on-demand generation",
				category, len(pending)-generated, len(pending))
			break
		}
		if err := r.thumbs.Generate(ctx, item.ID, item.Path, false); err != nil {
			logging.Warn("reconciler: thumbnail generation failed for %q: %v", item.Path, err)
			continue
		}
		generated++
	}
	metrics.ReconcilerScansTotal.WithLabelValues("smart_refresh").Inc()
	return result, nil
}

// SingleFileScan upserts one path (used after a video edit completes) and
// forces thumbnail regeneration for it.
func (r *Reconciler) SingleFileScan(ctx context.Context, path, category, relativePath string, mediaType scanfs.MediaType, size, mtime int64) (int64, error) {
	ext := filepath.Ext(path)
	subcategory := ""
	if dir := filepath.ToSlash(filepath.Dir(relativePath)); dir != "." {
		subcategory = dir
	}
	var subPtr *string
	if subcategory != "" {
		subPtr = &subcategory
	}

	id, _, err := r.db.UpsertScannedItem(ctx, database.ScanFields{
		Path:         path,
		Name:         filepath.Base(path),
		Category:     category,
		Subcategory:  subPtr,
		RelativePath: relativePath,
		Size:         size,
		Mtime:        mtime,
		Extension:    ext,
		MediaType:    database.MediaType(mediaType),
	}, true)
	if err != nil {
		return 0, fmt.Errorf("single file scan %q: %w", path, err)
	}

	if r.thumbs != nil {
		if err := r.thumbs.Generate(ctx, id, path, true); err != nil {
			logging.Warn("reconciler: forced thumbnail generation failed for %q: %v", path, err)
		}
	}
	metrics.ReconcilerScansTotal.WithLabelValues("single_file").Inc()
	return id, nil
}

// RootWidePrune deletes every catalog row whose path no longer exists under
// any of existingPaths — a root-wide sweep, not limited to one category.
func (r *Reconciler) RootWidePrune(ctx context.Context, existingPaths map[string]bool) (int64, error) {
	deleted, err := r.db.DeleteMissingUnderRoot(ctx, existingPaths)
	if err != nil {
		return 0, fmt.Errorf("root-wide prune: %w", err)
	}
	metrics.ReconcilerScansTotal.WithLabelValues("root_wide_prune").Inc()
	return deleted, nil
}

func toScanFields(f scanfs.File) database.ScanFields {
	var subPtr *string
	if f.Subcategory != "" {
		subPtr = &f.Subcategory
	}
	return database.ScanFields{
		Path:         f.Path,
		Name:         f.Name,
		Category:     f.Category,
		Subcategory:  subPtr,
		RelativePath: f.RelativePath,
		Size:         f.Size,
		Mtime:        f.ModTime,
		Extension:    f.Extension,
		MediaType:    database.MediaType(f.MediaType),
	}
}
