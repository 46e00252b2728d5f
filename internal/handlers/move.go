package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"clipper/internal/movecoordinator"

	"github.com/gorilla/mux"
)

// MoveRequest moves a MediaItem to a new category/subcategory, optionally
// renaming it in the process.
type MoveRequest struct {
	TargetCategory    string `json:"targetCategory"`
	TargetSubcategory string `json:"targetSubcategory"`
	NewName           string `json:"newName"`
}

// RenameRequest renames a MediaItem in place.
type RenameRequest struct {
	NewName string `json:"newName"`
}

// FolderRenameRequest renames a top-level category folder.
type FolderRenameRequest struct {
	OldCategory string `json:"oldCategory"`
	NewCategory string `json:"newCategory"`
}

func parseItemID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeMoveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, movecoordinator.ErrSourceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, movecoordinator.ErrDestinationExists),
		errors.Is(err, movecoordinator.ErrInvalidCategory),
		errors.Is(err, movecoordinator.ErrNotInDeleteCategory),
		errors.Is(err, movecoordinator.ErrSubdirectoryRename):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// MoveItem moves (and optionally renames) a catalog item.
func (h *Handlers) MoveItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.moveCoordinator().Move(r.Context(), id, req.TargetCategory, req.TargetSubcategory, req.NewName)
	if err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSON(w, item)
}

// RenameItem renames a catalog item in place.
func (h *Handlers) RenameItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.NewName == "" {
		http.Error(w, "newName is required", http.StatusBadRequest)
		return
	}

	item, err := h.moveCoordinator().Rename(r.Context(), id, req.NewName)
	if err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSON(w, item)
}

// HashRenameItem renames a catalog item to a content-hash-derived filename.
func (h *Handlers) HashRenameItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	item, err := h.moveCoordinator().HashRename(r.Context(), id)
	if err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSON(w, item)
}

// RenameFolder renames a top-level category folder and every item beneath
// it.
func (h *Handlers) RenameFolder(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req FolderRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OldCategory == "" || req.NewCategory == "" {
		http.Error(w, "oldCategory and newCategory are required", http.StatusBadRequest)
		return
	}

	if err := h.moveCoordinator().FolderRename(r.Context(), req.OldCategory, req.NewCategory); err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// SoftDeleteItem moves an item into the DELETE category pending permanent
// removal.
func (h *Handlers) SoftDeleteItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	item, originalCategory, err := h.moveCoordinator().SoftDelete(r.Context(), id)
	if err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"item": item, "originalCategory": originalCategory})
}

// HardDeleteItem permanently deletes an item already in the DELETE
// category, from disk and from the catalog.
func (h *Handlers) HardDeleteItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := h.moveCoordinator().HardDelete(r.Context(), id); err != nil {
		writeMoveError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}
