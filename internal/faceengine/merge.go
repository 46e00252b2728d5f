package faceengine

import (
	"context"
	"errors"
	"fmt"

	"clipper/internal/metrics"
)

// Merge reparents encodings and VideoFace links from sourceIDs onto
// targetID (appearance_counts summed where a link already exists on the
// target) and deletes the source FaceIDs. Optionally renames the target
// and/or relinks it to a different actor.
func (e *Engine) Merge(ctx context.Context, targetID int64, sourceIDs []int64, newName *string, newActorID *int64) error {
	if len(sourceIDs) == 0 {
		return errors.New("faceengine: merge requires at least one source face")
	}
	for _, src := range sourceIDs {
		if src == targetID {
			return errors.New("faceengine: a face cannot be merged into itself")
		}
	}
	if err := e.db.MergeFaces(ctx, targetID, sourceIDs, newName, newActorID); err != nil {
		return fmt.Errorf("merge faces: %w", err)
	}
	metrics.FaceMergesTotal.Inc()
	return nil
}
