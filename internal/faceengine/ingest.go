package faceengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"clipper/internal/database"
	"clipper/internal/faceembed"
	"clipper/internal/frameextract"
	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// ManualSearchResult is what a manual face search returns: the uploaded
// crop's own encoding (for a later commit) plus any catalog matches above
// threshold.
type ManualSearchResult struct {
	Encoding   string      `json:"encoding"`
	Thumbnail  string      `json:"thumbnail"`
	Confidence float64     `json:"confidence"`
	Matches    []FaceMatch `json:"matches"`
}

// ManualSearch embeds an uploaded face crop and returns top matches above
// threshold (default ManualSearchThreshold). imageBytes is echoed back
// base64-encoded as Thumbnail so the caller can commit it later without
// re-uploading.
func (e *Engine) ManualSearch(ctx context.Context, imageBytes []byte, threshold float64, topK int) (*ManualSearchResult, error) {
	if threshold <= 0 {
		threshold = ManualSearchThreshold
	}
	result, err := e.embed.Embed(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("embed face crop: %w", err)
	}
	matches, err := e.SearchSimilar(ctx, result.Embedding, nil, threshold, topK)
	if err != nil {
		return nil, err
	}
	return &ManualSearchResult{
		Encoding:   faceembed.ToBase64(result.Embedding),
		Thumbnail:  base64Thumbnail(imageBytes),
		Confidence: result.Confidence,
		Matches:    matches,
	}, nil
}

// Candidate is one detected face awaiting review or direct commit: either a
// match against an existing FaceID, or a proposal to create a new one.
type Candidate struct {
	FrameTimestamp float64 `json:"frameTimestamp"`
	Encoding       string  `json:"encoding"`
	EncodingHash   string  `json:"-"`
	Thumbnail      string  `json:"thumbnail"`
	Confidence     float64 `json:"confidence"`
	QualityScore   float64 `json:"qualityScore"`

	MatchedFaceID   *int64  `json:"matchedFaceId,omitempty"`
	MatchedFaceName *string `json:"matchedFaceName,omitempty"`
	Similarity      float64 `json:"similarity,omitempty"`
}

// Detect samples frames from a video (or the single frame of an image) and
// returns the detected candidates without writing anything, letting a
// caller review before committing. Each candidate already carries its best
// catalog match (if any) at AutoScanThreshold so a caller can render a
// review UI.
func (e *Engine) Detect(ctx context.Context, path string, durationSeconds float64, fast bool, maxDurationSeconds float64) ([]Candidate, error) {
	frames, err := e.sampleFrames(ctx, path, durationSeconds, fast, maxDurationSeconds)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(frames))
	for _, f := range frames {
		result, err := e.embed.Embed(ctx, f.bytes)
		if err != nil {
			logging.Warn("faceengine: embed failed for frame at %.2fs: %v", f.timestamp, err)
			continue
		}
		enc := faceembed.ToBase64(result.Embedding)
		c := Candidate{
			FrameTimestamp: f.timestamp,
			Encoding:       enc,
			EncodingHash:   encodingHash(enc),
			Thumbnail:      base64Thumbnail(f.bytes),
			Confidence:     result.Confidence,
			QualityScore:   result.Confidence,
		}

		matches, err := e.SearchSimilar(ctx, result.Embedding, nil, AutoScanThreshold, 1)
		if err == nil && len(matches) > 0 {
			best := matches[0]
			c.MatchedFaceID = &best.FaceID
			c.MatchedFaceName = &best.FaceName
			c.Similarity = best.BestSimilarity
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// CommitResult reports the outcome of writing an approved candidate set.
type CommitResult struct {
	FaceIDs        []int64 `json:"faceIds"`
	EncodingsAdded int     `json:"encodingsAdded"`
	Skipped        int     `json:"skipped"`
}

// Commit writes an approved candidate set for mediaItemID: each matched
// candidate attaches to its best existing FaceID, and every unmatched
// candidate attaches to one freshly created FaceID (never one-per-frame).
// detectionMethod should be database.DetectionAutoScan or
// database.DetectionBatchExtraction depending on the caller.
func (e *Engine) Commit(ctx context.Context, mediaItemID int64, candidates []Candidate, detectionMethod string) (*CommitResult, error) {
	var unmatchedFaceID *int64
	touchedFaces := make(map[int64]bool)
	result := &CommitResult{}

	for _, c := range candidates {
		targetID := c.MatchedFaceID
		if targetID == nil {
			if unmatchedFaceID == nil {
				id, err := e.db.CreateFaceID(ctx, "Unknown")
				if err != nil {
					return nil, fmt.Errorf("create face for unmatched detections: %w", err)
				}
				unmatchedFaceID = &id
			}
			targetID = unmatchedFaceID
			metrics.FaceAutoScanDetectionsTotal.WithLabelValues("unmatched").Inc()
		} else {
			metrics.FaceAutoScanDetectionsTotal.WithLabelValues("matched").Inc()
		}

		mediaID := mediaItemID
		conf := c.Confidence
		quality := c.QualityScore
		thumb := c.Thumbnail
		added, err := e.db.AddEncodingToFace(ctx, *targetID, &mediaID, c.FrameTimestamp, c.Encoding, c.EncodingHash, &thumb, &conf, &quality)
		if err != nil {
			return nil, fmt.Errorf("add encoding to face %d: %w", *targetID, err)
		}
		if added.Skipped {
			result.Skipped++
			metrics.FaceEncodingsAddedTotal.WithLabelValues(detectionMethod, "skipped").Inc()
		} else {
			result.EncodingsAdded++
			metrics.FaceEncodingsAddedTotal.WithLabelValues(detectionMethod, "added").Inc()
		}
		touchedFaces[*targetID] = true
	}

	for faceID := range touchedFaces {
		if err := e.db.UpsertVideoFace(ctx, mediaItemID, faceID, detectionMethod); err != nil {
			return nil, fmt.Errorf("link video face %d: %w", faceID, err)
		}
		result.FaceIDs = append(result.FaceIDs, faceID)
	}
	return result, nil
}

// AutoScan runs Detect then immediately Commits the result under
// database.DetectionAutoScan.
func (e *Engine) AutoScan(ctx context.Context, mediaItemID int64, path string, durationSeconds float64, fast bool, maxDurationSeconds float64) (*CommitResult, error) {
	candidates, err := e.Detect(ctx, path, durationSeconds, fast, maxDurationSeconds)
	if err != nil {
		return nil, err
	}
	return e.Commit(ctx, mediaItemID, candidates, database.DetectionAutoScan)
}

type sampledFrame struct {
	timestamp float64
	bytes     []byte
}

// sampleFrames extracts up to the configured number of frames from a video,
// or the single frame of a still image, for auto-scan/detect. durationSeconds
// <= 0 is treated as a single-frame image: one embed at the file itself.
func (e *Engine) sampleFrames(ctx context.Context, path string, durationSeconds float64, fast bool, maxDurationSeconds float64) ([]sampledFrame, error) {
	if durationSeconds <= 0 {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		return []sampledFrame{{timestamp: 0, bytes: data}}, nil
	}

	n := DefaultAutoScanFrames
	if fast {
		n = FastAutoScanFrames
	}
	if n > MaxAutoScanFrames {
		n = MaxAutoScanFrames
	}

	effective := durationSeconds
	if maxDurationSeconds > 0 && maxDurationSeconds < effective {
		effective = maxDurationSeconds
	}

	frames := make([]sampledFrame, 0, n)
	for i := 0; i < n; i++ {
		pct := (i * 100) / n
		ts := frameextract.TimestampForPercent(effective, pct)
		data, err := e.grabber.FrameAt(ctx, path, ts)
		if err != nil {
			logging.Warn("faceengine: skipping frame at %s: %v", ts, err)
			continue
		}
		seconds := effective * float64(pct) / 100.0
		frames = append(frames, sampledFrame{timestamp: seconds, bytes: data})
	}
	return frames, nil
}

func encodingHash(encodingB64 string) string {
	sum := sha256.Sum256([]byte(encodingB64))
	return hex.EncodeToString(sum[:])
}
