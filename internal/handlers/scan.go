package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"clipper/internal/database"
	"clipper/internal/reconciler"
	"clipper/internal/scanfs"
)

// ScanCategory runs a fast or smart-refresh scan over one category directory
// under the active root. ?mode=smart opts into thumbnail backfill bounded by
// ?budgetSeconds (default reconciler.DefaultSmartRefreshBudget).
func (h *Handlers) ScanCategory(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	categoryDir := filepath.Join(h.rootMgr.Current().Path, category)
	rec := h.reconciler()

	var result *reconciler.Result
	var err error
	if r.URL.Query().Get("mode") == "smart" {
		budget := reconciler.DefaultSmartRefreshBudget
		if raw := r.URL.Query().Get("budgetSeconds"); raw != "" {
			if secs, parseErr := strconv.Atoi(raw); parseErr == nil && secs > 0 {
				budget = time.Duration(secs) * time.Second
			}
		}
		result, err = rec.SmartRefresh(r.Context(), categoryDir, category, budget)
	} else {
		result, err = rec.FastScan(r.Context(), categoryDir, category)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// PruneRoot removes catalog entries whose path no longer exists anywhere
// under the active root, given the caller's authoritative set of paths still
// on disk.
func (h *Handlers) PruneRoot(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		ExistingPaths []string `json:"existingPaths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	existing := make(map[string]bool, len(req.ExistingPaths))
	for _, p := range req.ExistingPaths {
		existing[p] = true
	}

	deleted, err := h.reconciler().RootWidePrune(r.Context(), existing)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int64{"deleted": deleted})
}

// SubcategorySummary is one immediate subfolder surfaced by the hierarchical
// scan mode, with a shallow video count and a thumbnail to represent it in
// a lazily-expanding folder tree, per SPEC_FULL §12.2.
type SubcategorySummary struct {
	Name          string `json:"name"`
	VideoCount    int    `json:"videoCount"`
	ThumbnailPath string `json:"thumbnailPath,omitempty"`
}

// ScanStructureResponse is the hierarchical listing for one category: its
// direct videos plus a shallow preview of each immediate subfolder.
type ScanStructureResponse struct {
	Category      string               `json:"category"`
	VideoCount    int                  `json:"videoCount"`
	Subcategories []SubcategorySummary `json:"subcategories"`
}

// ScanStructure exposes the File Scanner's hierarchical mode as a read
// operation: direct videos plus immediate subfolders of one category, each
// carrying a shallow preview for lazy UI expansion (§4.2, SPEC_FULL §12.2).
func (h *Handlers) ScanStructure(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	categoryDir := filepath.Join(h.rootMgr.Current().Path, category)
	scanner := scanfs.New(h.excluded)
	videos, folders, err := scanner.Hierarchical(categoryDir, category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ScanStructureResponse{
		Category:      category,
		VideoCount:    len(videos),
		Subcategories: h.summarizeFolders(r.Context(), folders),
	})
}

// ScanSubfolders lists the immediate subfolders one level below
// {category}/{subcategory}, for lazy expansion of a folder tree beyond
// ScanStructure's first level.
func (h *Handlers) ScanSubfolders(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	category := r.URL.Query().Get("category")
	subcategory := r.URL.Query().Get("subcategory")
	if category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	dir := h.rootMgr.Current().Path
	dir = filepath.Join(dir, category)
	if subcategory != "" {
		dir = filepath.Join(dir, subcategory)
	}

	scanner := scanfs.New(h.excluded)
	videos, folders, err := scanner.Hierarchical(dir, category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ScanStructureResponse{
		Category:      category,
		VideoCount:    len(videos),
		Subcategories: h.summarizeFolders(r.Context(), folders),
	})
}

// summarizeFolders resolves a shallow thumbnail for each previewed folder by
// looking up its first previewed video in the catalog; folders whose
// preview videos aren't cataloged yet get an empty thumbnail path.
func (h *Handlers) summarizeFolders(ctx context.Context, folders []scanfs.Folder) []SubcategorySummary {
	out := make([]SubcategorySummary, 0, len(folders))
	for _, f := range folders {
		summary := SubcategorySummary{Name: f.Name, VideoCount: len(f.Preview)}
		for _, preview := range f.Preview {
			item, err := h.currentDB().GetMediaItemByPath(ctx, preview.Path)
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				continue
			}
			summary.ThumbnailPath = item.ThumbnailURL()
			break
		}
		out = append(out, summary)
	}
	return out
}
