package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"clipper/internal/database"

	"github.com/gorilla/mux"
)

// CatalogSearch runs the structured + full-text catalog query (distinct
// from the teacher's legacy filesystem Search) against the active root.
func (h *Handlers) CatalogSearch(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	opts := database.CatalogSearchOptions{
		Query:       q.Get("q"),
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Page:        1,
		PageSize:    50,
	}
	if tag := q.Get("tags"); tag != "" {
		opts.Tags = append(opts.Tags, tag)
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		opts.Page = page
	}
	if pageSize, err := strconv.Atoi(q.Get("pageSize")); err == nil && pageSize > 0 {
		opts.PageSize = pageSize
	}
	opts.IncludeDeleted = q.Get("includeDeleted") == "true"

	result, err := h.currentDB().CatalogSearch(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// CatalogSuggestions returns distinct-value autocomplete suggestions for one
// facet field (channel, series, year).
func (h *Handlers) CatalogSuggestions(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	field := r.URL.Query().Get("field")
	limit := 20
	if raw, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && raw > 0 {
		limit = raw
	}

	suggestions, err := h.currentDB().CatalogSuggestions(r.Context(), field, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, suggestions)
}

// GetCatalogItem returns one MediaItem by id.
func (h *Handlers) GetCatalogItem(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	item, err := h.currentDB().GetMediaItem(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, item)
}

// UpdateCatalogItemEditorial applies a partial editorial update (display
// name, description, series/season/episode, rating, favorite, final) to one
// item.
func (h *Handlers) UpdateCatalogItemEditorial(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	var u database.EditorialUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.currentDB().UpdateEditorial(r.Context(), id, u); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// BulkUpdateEditorial applies the same partial editorial update to many
// items at once, e.g. tagging an entire selection as favorite.
func (h *Handlers) BulkUpdateEditorial(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		IDs      []int64                 `json:"ids"`
		Editoral database.EditorialUpdate `json:"editorial"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}

	if err := h.currentDB().BulkUpdateEditorial(r.Context(), req.IDs, req.Editoral); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// ListCatalogItemsByCategory lists every item under one category, optionally
// filtered by media type (?type=video|image).
func (h *Handlers) ListCatalogItemsByCategory(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	category := mux.Vars(r)["category"]
	mediaType := database.MediaType(r.URL.Query().Get("type"))

	items, err := h.currentDB().ListMediaItemsByCategory(r.Context(), category, mediaType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []database.MediaItem{}
	}
	writeJSON(w, items)
}
