package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"clipper/internal/jobrunner"

	"github.com/gorilla/mux"
)

func (h *Handlers) jobOutputDir(subdir string) string {
	root := h.cacheDir
	if h.rootMgr != nil {
		if current := h.rootMgr.Current().Path; current != "" {
			root = filepath.Join(current, ".clipper")
		}
	}
	return filepath.Join(root, subdir)
}

func parseJobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// SubmitEditJob starts a background cut/crop/smartcut edit job.
func (h *Handlers) SubmitEditJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	var req jobrunner.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OutputDir == "" {
		req.OutputDir = h.jobOutputDir("Edits")
	}

	var dims jobrunner.DimsExtractor
	if h.rootMgr != nil {
		dims = func(ctx context.Context, path string) (int, int, error) {
			item, err := h.currentDB().GetMediaItemByPath(ctx, path)
			if err != nil {
				return 0, 0, err
			}
			width, height := 0, 0
			if item.Width != nil {
				width = *item.Width
			}
			if item.Height != nil {
				height = *item.Height
			}
			return width, height, nil
		}
	}

	job, err := h.jobs.SubmitEdit(r.Context(), req, dims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, job)
}

// SubmitHLSDownloadJob starts a background ffmpeg HLS time-range download.
func (h *Handlers) SubmitHLSDownloadJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	var req jobrunner.HLSDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OutputDir == "" {
		req.OutputDir = h.jobOutputDir("Downloads")
	}

	job, err := h.jobs.SubmitHLSDownload(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, job)
}

// SubmitSOCKSDownloadJob starts a background SOCKS-proxied curl download.
func (h *Handlers) SubmitSOCKSDownloadJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	var req jobrunner.SOCKSDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OutputDir == "" {
		req.OutputDir = h.jobOutputDir("Downloads")
	}

	job, err := h.jobs.SubmitSOCKSDownload(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, job)
}

// GetJob returns one job's current status.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseJobID(r)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	job, ok := h.jobs.Get(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, job)
}

// ListJobs returns every job still tracked by the runner, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, h.jobs.List())
}

// RemoveJob drops one job from the registry regardless of its status.
func (h *Handlers) RemoveJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseJobID(r)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	if !h.jobs.Remove(id) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, "ok")
}

// ClearCompletedJobs drops every job in a terminal state from the registry.
func (h *Handlers) ClearCompletedJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, map[string]int{"removed": h.jobs.ClearCompleted()})
}

// SOCKSConfigRequest sets or clears the runner-global SOCKS proxy/referer
// defaults used whenever a SOCKS download request omits its own.
type SOCKSConfigRequest struct {
	Proxy   *string `json:"proxy"`
	Referer *string `json:"referer"`
}

// SetSOCKSConfig updates the process-wide SOCKS proxy/referer defaults.
func (h *Handlers) SetSOCKSConfig(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	var req SOCKSConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Proxy != nil {
		if *req.Proxy == "" {
			h.jobs.ClearSOCKSProxy()
		} else {
			h.jobs.SetSOCKSProxy(*req.Proxy)
		}
	}
	if req.Referer != nil {
		if *req.Referer == "" {
			h.jobs.ClearSOCKSReferer()
		} else {
			h.jobs.SetSOCKSReferer(*req.Referer)
		}
	}
	writeJSONStatus(w, "ok")
}

// GetSOCKSConfig returns the current process-wide SOCKS defaults.
func (h *Handlers) GetSOCKSConfig(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job runner not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, map[string]string{
		"proxy":   h.jobs.SOCKSProxy(),
		"referer": h.jobs.SOCKSReferer(),
	})
}
