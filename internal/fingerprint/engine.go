// Package fingerprint implements perceptual hashing of sampled video frames,
// Hamming-distance duplicate detection against a query item, and
// library-wide transitive duplicate grouping via union-find.
//
// Frame acquisition goes through internal/frameextract's ffprobe/ffmpeg
// subprocess idiom; the DCT hashing and union-find primitives come from
// internal/phash and internal/unionfind.
package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"clipper/internal/database"
	"clipper/internal/frameextract"
	"clipper/internal/logging"
	"clipper/internal/metrics"
	"clipper/internal/phash"
)

// SamplePercents are the frame positions sampled for a video.
var SamplePercents = []int{5, 25, 50, 75, 95}

// DefaultDuplicateThreshold is the default Hamming distance at or below
// which two items are considered similar.
const DefaultDuplicateThreshold = 10

// DurationProvider resolves a MediaItem's duration in seconds, decoupling
// the engine from a specific metadata source (catalog column or a fresh
// ffprobe call).
type DurationProvider func(ctx context.Context, mediaItemID int64) (float64, error)

// Engine implements the Fingerprint Engine over a catalog Database.
type Engine struct {
	db      *database.Database
	grabber *frameextract.Grabber
}

// New constructs a fingerprint Engine using the given frame grabber, or a
// default ffmpeg-backed one if grabber is nil.
func New(db *database.Database, grabber *frameextract.Grabber) *Engine {
	if grabber == nil {
		grabber = frameextract.New()
	}
	return &Engine{db: db, grabber: grabber}
}

// GenerateForVideo samples frames at SamplePercents, hashes each one, and
// persists the result, replacing any prior fingerprints for the item. A
// frame that fails to extract or decode is skipped rather than failing the
// whole run; one successful hash is enough for the item to participate in
// later duplicate detection.
func (e *Engine) GenerateForVideo(ctx context.Context, mediaItemID int64, path string, durationSeconds float64) ([]string, error) {
	var hashes []string
	for _, pct := range SamplePercents {
		ts := frameextract.TimestampForPercent(durationSeconds, pct)
		frame, err := e.grabber.FrameAt(ctx, path, ts)
		if err != nil {
			logging.Warn("fingerprint: skipping frame at %d%% for item %d: %v", pct, mediaItemID, err)
			metrics.FingerprintFramesSkipped.Inc()
			continue
		}
		h, err := hashBytes(frame)
		if err != nil {
			logging.Warn("fingerprint: skipping undecodable frame at %d%% for item %d: %v", pct, mediaItemID, err)
			metrics.FingerprintFramesSkipped.Inc()
			continue
		}
		hashes = append(hashes, h)
	}

	if err := e.db.ReplaceFingerprints(ctx, mediaItemID, hashes); err != nil {
		metrics.FingerprintGenerationsTotal.WithLabelValues("video", "error").Inc()
		return nil, fmt.Errorf("persist fingerprints: %w", err)
	}
	if err := e.db.MarkFingerprintGenerated(ctx, mediaItemID, len(hashes) > 0); err != nil {
		return nil, fmt.Errorf("mark fingerprint generated: %w", err)
	}
	metrics.FingerprintGenerationsTotal.WithLabelValues("video", "ok").Inc()
	return hashes, nil
}

// GenerateForImage hashes the image file directly (first frame if animated,
// since image.Decode only ever reads the initial frame of a GIF) and
// persists it as the item's sole fingerprint.
func (e *Engine) GenerateForImage(ctx context.Context, mediaItemID int64, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.FingerprintGenerationsTotal.WithLabelValues("image", "error").Inc()
		return "", fmt.Errorf("read image: %w", err)
	}
	h, err := hashBytes(data)
	if err != nil {
		metrics.FingerprintGenerationsTotal.WithLabelValues("image", "error").Inc()
		return "", fmt.Errorf("hash image: %w", err)
	}
	if err := e.db.ReplaceFingerprints(ctx, mediaItemID, []string{h}); err != nil {
		return "", fmt.Errorf("persist fingerprint: %w", err)
	}
	if err := e.db.MarkFingerprintGenerated(ctx, mediaItemID, true); err != nil {
		return "", fmt.Errorf("mark fingerprint generated: %w", err)
	}
	metrics.FingerprintGenerationsTotal.WithLabelValues("image", "ok").Inc()
	return h, nil
}

func hashBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	return phash.Compute(img)
}
