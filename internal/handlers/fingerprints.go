package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"clipper/internal/database"
	"clipper/internal/fingerprint"
)

// GenerateFingerprint computes and persists the perceptual fingerprint set
// for one catalog item.
func (h *Handlers) GenerateFingerprint(w http.ResponseWriter, r *http.Request) {
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
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	eng := h.fingerprintEngine()
	var hashes []string
	if item.MediaType == database.MediaTypeVideo {
		duration := 0.0
		if item.Duration != nil {
			duration = *item.Duration
		}
		hashes, err = eng.GenerateForVideo(r.Context(), item.ID, item.Path, duration)
	} else {
		var hash string
		hash, err = eng.GenerateForImage(r.Context(), item.ID, item.Path)
		if err == nil {
			hashes = []string{hash}
		}
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"mediaItemId": item.ID, "hashes": hashes})
}

// CheckFingerprintDuplicate compares a transient set of query hashes
// against the catalog and returns every item within the distance
// threshold, without requiring the query to already be in the catalog.
func (h *Handlers) CheckFingerprintDuplicate(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		Hashes    []string `json:"hashes"`
		Category  string   `json:"category"`
		Threshold int      `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Hashes) == 0 {
		http.Error(w, "hashes is required", http.StatusBadRequest)
		return
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = fingerprint.DefaultDuplicateThreshold
	}

	matches, err := h.fingerprintEngine().CheckDuplicate(r.Context(), req.Hashes, req.Category, threshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, matches)
}

// FindAllDuplicates groups every fingerprinted item in the active root (or
// one category) into transitive near-duplicate clusters.
func (h *Handlers) FindAllDuplicates(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	category := r.URL.Query().Get("category")
	threshold := fingerprint.DefaultDuplicateThreshold
	if raw, err := strconv.Atoi(r.URL.Query().Get("threshold")); err == nil && raw > 0 {
		threshold = raw
	}

	groups, err := h.fingerprintEngine().FindAllDuplicates(r.Context(), category, threshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, groups)
}
