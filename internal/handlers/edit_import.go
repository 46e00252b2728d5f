package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"clipper/internal/database"
	"clipper/internal/jobrunner"
	"clipper/internal/scanfs"
)

// ImportEditOutput runs a single-file scan over an edit job's output path,
// cataloging it the same way a recursive scan would — without waiting on
// the next category rescan. It satisfies jobrunner.EditImporter.
func (h *Handlers) ImportEditOutput(ctx context.Context, sourceMediaItemID int64, outputPath string) (int64, error) {
	if h.rootMgr == nil {
		return 0, fmt.Errorf("multi-root support not configured")
	}

	mediaType, ok := scanfs.Classify(filepath.Ext(outputPath))
	if !ok {
		return 0, fmt.Errorf("unrecognized media extension: %s", outputPath)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, fmt.Errorf("stat edit output: %w", err)
	}

	source, err := h.currentDB().GetMediaItem(ctx, sourceMediaItemID)
	if err != nil {
		return 0, fmt.Errorf("look up source media item: %w", err)
	}

	root := h.rootMgr.Current().Path
	relative, err := filepath.Rel(filepath.Join(root, source.Category), outputPath)
	if err != nil {
		relative = filepath.Base(outputPath)
	}

	return h.reconciler().SingleFileScan(ctx, outputPath, source.Category, relative, mediaType, info.Size(), info.ModTime().Unix())
}

var _ jobrunner.EditImporter = (*Handlers)(nil)

// editJobResult loads a job that must have completed with a catalog-linked
// result before a post-edit step (copy-metadata, preserve-faces) can run
// against it.
func (h *Handlers) editJobResult(r *http.Request) (source, result int64, err error) {
	if h.jobs == nil {
		return 0, 0, fmt.Errorf("job runner not configured")
	}
	id, err := parseJobID(r)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid job id")
	}
	job, ok := h.jobs.Get(id)
	if !ok {
		return 0, 0, fmt.Errorf("job not found")
	}
	if job.Status != jobrunner.StatusCompleted {
		return 0, 0, fmt.Errorf("job has not completed")
	}
	if job.SourceMediaItemID == 0 || job.ResultMediaItemID == nil {
		return 0, 0, fmt.Errorf("job has no catalog-linked result to copy from/to")
	}
	return job.SourceMediaItemID, *job.ResultMediaItemID, nil
}

// CopyEditMetadata copies the source media item's tags and actors onto an
// edit job's cataloged result, once both sides are importer-linked.
func (h *Handlers) CopyEditMetadata(w http.ResponseWriter, r *http.Request) {
	source, result, err := h.editJobResult(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	db := h.currentDB()
	ctx := r.Context()

	tags, err := db.MediaItemTags(ctx, source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := db.SetMediaItemTags(ctx, result, tags); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	actors, err := db.MediaItemActors(ctx, source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, name := range actors {
		actorID, err := db.EnsureActor(ctx, name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := db.LinkMediaItemActor(ctx, result, actorID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSONStatus(w, "ok")
}

// PreserveEditFaces copies the source media item's identified faces onto an
// edit job's cataloged result, tagged as preserved rather than rediscovered,
// so a crop/cut doesn't erase the provenance of faces already matched on the
// original file.
func (h *Handlers) PreserveEditFaces(w http.ResponseWriter, r *http.Request) {
	source, result, err := h.editJobResult(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	db := h.currentDB()
	ctx := r.Context()

	faces, err := db.VideoFacesForItem(ctx, source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for _, face := range faces {
		if err := db.UpsertVideoFace(ctx, result, face.FaceID, database.DetectionPreservedFromEdit); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSONStatus(w, "ok")
}
