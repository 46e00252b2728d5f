package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"clipper/internal/rootmanager"
)

// SelectRootRequest names the root to switch to.
type SelectRootRequest struct {
	Name string `json:"name"`
}

// AddRootRequest describes a new root to register.
type AddRootRequest struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

// ListRoots returns every configured root plus which one is active.
func (h *Handlers) ListRoots(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	writeJSON(w, map[string]interface{}{
		"roots":   h.rootMgr.List(),
		"current": h.rootMgr.Current(),
	})
}

// AddRoot registers a new root directory.
func (h *Handlers) AddRoot(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req AddRootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Path == "" {
		http.Error(w, "name and path are required", http.StatusBadRequest)
		return
	}

	if err := h.rootMgr.AddRoot(rootmanager.Root{Name: req.Name, Path: req.Path, Default: req.Default}); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSONStatus(w, "ok")
}

// SelectRoot atomically switches the active root.
func (h *Handlers) SelectRoot(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	var req SelectRootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.rootMgr.Select(r.Context(), req.Name); err != nil {
		switch {
		case errors.Is(err, rootmanager.ErrRootNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, rootmanager.ErrUnhealthy):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]interface{}{"status": "ok", "current": h.rootMgr.Current()})
}
