package faceengine

import (
	"context"
	"fmt"

	"clipper/internal/metrics"
)

// DeleteEncoding removes a FaceEncoding. The owning FaceID's encoding_count
// is decremented and, if the deleted encoding held primary_encoding_id, the
// next-best encoding (by quality then confidence) is auto-promoted — all
// inside internal/database.DeleteEncoding. If the face has no encodings
// left it is retained as a "no-embedding" label.
func (e *Engine) DeleteEncoding(ctx context.Context, encodingID int64) error {
	if err := e.db.DeleteEncoding(ctx, encodingID); err != nil {
		return fmt.Errorf("delete encoding: %w", err)
	}
	return nil
}

// CleanupOrphans removes every FaceID with zero encodings AND zero
// VideoFace links (either alone is not sufficient) and returns how many
// were removed.
func (e *Engine) CleanupOrphans(ctx context.Context) (int64, error) {
	n, err := e.db.DeleteEmptyFaceIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup orphans: %w", err)
	}
	if n > 0 {
		metrics.FaceOrphansCleanedTotal.Add(float64(n))
	}
	return n, nil
}
