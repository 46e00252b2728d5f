package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"clipper/internal/database"
	"clipper/internal/faceengine"

	"github.com/gorilla/mux"
)

func parseFaceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// ListFaceCatalog returns every known FaceID.
func (h *Handlers) ListFaceCatalog(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	faces, err := h.currentDB().ListFaceIDs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, faces)
}

// RenameFace updates a FaceID's display name and/or linked actor.
func (h *Handlers) RenameFace(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseFaceID(r)
	if err != nil {
		http.Error(w, "invalid face id", http.StatusBadRequest)
		return
	}
	var req struct {
		Name    *string `json:"name"`
		ActorID *int64  `json:"actorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.currentDB().RenameFaceID(r.Context(), id, req.Name, req.ActorID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// DeleteFace removes a FaceID and every encoding attached to it.
func (h *Handlers) DeleteFace(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseFaceID(r)
	if err != nil {
		http.Error(w, "invalid face id", http.StatusBadRequest)
		return
	}
	if err := h.currentDB().DeleteFaceID(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// SetPrimaryFaceEncoding chooses which encoding represents a FaceID in
// catalog listings.
func (h *Handlers) SetPrimaryFaceEncoding(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseFaceID(r)
	if err != nil {
		http.Error(w, "invalid face id", http.StatusBadRequest)
		return
	}
	var req struct {
		EncodingID int64 `json:"encodingId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.currentDB().SetPrimaryEncoding(r.Context(), id, req.EncodingID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// DeleteFaceEncoding removes one encoding; the FaceID itself is cleaned up
// separately by CleanupOrphans if it ends up empty.
func (h *Handlers) DeleteFaceEncoding(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["encodingId"], 10, 64)
	if err != nil {
		http.Error(w, "invalid encoding id", http.StatusBadRequest)
		return
	}
	if err := h.faceEngine().DeleteEncoding(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// CleanupOrphanFaces deletes every FaceID left with zero encodings.
func (h *Handlers) CleanupOrphanFaces(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	removed, err := h.faceEngine().CleanupOrphans(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

// FaceCleanupView returns one FaceID's encodings classified as keep/review/
// likely-misfile against the given similarity tolerance.
func (h *Handlers) FaceCleanupView(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseFaceID(r)
	if err != nil {
		http.Error(w, "invalid face id", http.StatusBadRequest)
		return
	}
	tau := faceengine.CleanupDefaultThreshold
	if raw, err := strconv.ParseFloat(r.URL.Query().Get("tau"), 64); err == nil && raw > 0 {
		tau = raw
	}
	entries, err := h.faceEngine().CleanupView(r.Context(), id, tau)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

// FaceDuplicateAnalysis groups one FaceID's own encodings into
// near-identical duplicate clusters.
func (h *Handlers) FaceDuplicateAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseFaceID(r)
	if err != nil {
		http.Error(w, "invalid face id", http.StatusBadRequest)
		return
	}
	groups, err := h.faceEngine().DuplicateEncodingsAnalysis(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, groups)
}

// CrossFaceGrouping clusters encodings across FaceIDs that look similar
// enough they may be the same person under two identities.
func (h *Handlers) CrossFaceGrouping(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	threshold := faceengine.CrossFaceDefaultThreshold
	if raw, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64); err == nil && raw > 0 {
		threshold = raw
	}
	groups, err := h.faceEngine().CrossFaceGrouping(r.Context(), threshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, groups)
}

// CompareFaces returns the pairwise similarity matrix for a small set of
// FaceIDs.
func (h *Handlers) CompareFaces(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		FaceIDs []int64 `json:"faceIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	matrix, err := h.faceEngine().Compare(r.Context(), req.FaceIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, matrix)
}

// MergeFaces merges a set of source FaceIDs into one target.
func (h *Handlers) MergeFaces(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		TargetID  int64   `json:"targetId"`
		SourceIDs []int64 `json:"sourceIds"`
		NewName   *string `json:"newName"`
		NewActor  *int64  `json:"newActorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.faceEngine().Merge(r.Context(), req.TargetID, req.SourceIDs, req.NewName, req.NewActor); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// ManualFaceSearch embeds an uploaded face crop and returns catalog matches
// above threshold, so a reviewer can confirm an identity before committing.
func (h *Handlers) ManualFaceSearch(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read uploaded image", http.StatusBadRequest)
		return
	}

	threshold := 0.0
	if raw, err := strconv.ParseFloat(r.FormValue("threshold"), 64); err == nil {
		threshold = raw
	}
	topK := 10
	if raw, err := strconv.Atoi(r.FormValue("topK")); err == nil && raw > 0 {
		topK = raw
	}

	result, err := h.faceEngine().ManualSearch(r.Context(), data, threshold, topK)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// DetectFaces samples frames from a catalog item and returns detected
// candidates for review, without writing anything to the catalog yet.
func (h *Handlers) DetectFaces(w http.ResponseWriter, r *http.Request) {
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
	duration := 0.0
	if item.Duration != nil {
		duration = *item.Duration
	}
	fast := r.URL.Query().Get("fast") == "true"
	maxDuration := 0.0
	if raw, err := strconv.ParseFloat(r.URL.Query().Get("maxDurationSeconds"), 64); err == nil {
		maxDuration = raw
	}

	candidates, err := h.faceEngine().Detect(r.Context(), item.Path, duration, fast, maxDuration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, candidates)
}

// CommitFaceDetections writes a reviewer-approved candidate set against one
// catalog item.
func (h *Handlers) CommitFaceDetections(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	var req struct {
		Candidates []faceengine.Candidate `json:"candidates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.faceEngine().Commit(r.Context(), id, req.Candidates, database.DetectionBatchExtraction)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// AutoScanFaces detects and commits in one step, under
// database.DetectionAutoScan.
func (h *Handlers) AutoScanFaces(w http.ResponseWriter, r *http.Request) {
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
	duration := 0.0
	if item.Duration != nil {
		duration = *item.Duration
	}
	fast := r.URL.Query().Get("fast") == "true"
	maxDuration := 0.0
	if raw, err := strconv.ParseFloat(r.URL.Query().Get("maxDurationSeconds"), 64); err == nil {
		maxDuration = raw
	}

	result, err := h.faceEngine().AutoScan(r.Context(), item.ID, item.Path, duration, fast, maxDuration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// ListVideoFaces returns every FaceID linked to one catalog item.
func (h *Handlers) ListVideoFaces(w http.ResponseWriter, r *http.Request) {
	if h.rootMgr == nil {
		http.Error(w, "multi-root support not configured", http.StatusNotImplemented)
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	faces, err := h.currentDB().VideoFacesForItem(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, faces)
}
