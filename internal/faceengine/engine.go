// Package faceengine implements embedding ingest (manual search, auto-scan,
// review-then-commit), cosine similarity search, FaceID lifecycle (merge,
// delete encoding, cleanup orphans), and the cleanup/cross-face grouping
// views used by the catalog UI.
//
// Grounded on virtengine-virtengine's face_extractor.go for the
// embed/compare contract (via internal/faceembed) and on the
// transaction-per-mutation style in internal/database/faces_catalog.go,
// which owns all persistence this package calls into.
package faceengine

import (
	"clipper/internal/database"
	"clipper/internal/faceembed"
	"clipper/internal/frameextract"
)

// Default similarity thresholds and sampling limits. Callers may override
// per request; these are the documented defaults, not hard limits.
const (
	ManualSearchThreshold      = 0.4
	AutoScanThreshold          = 0.8
	CleanupDefaultThreshold    = 0.3
	CleanupGoodThreshold       = 0.75
	DuplicateEncodingThreshold = 0.95
	CrossFaceDefaultThreshold  = 0.5

	DefaultAutoScanFrames     = 10
	MaxAutoScanFrames         = 50
	FastAutoScanFrames        = 5
)

// Engine implements the Face Engine over a catalog Database and a pluggable
// embedding client.
type Engine struct {
	db      *database.Database
	embed   faceembed.Client
	grabber *frameextract.Grabber
}

// New constructs a Face Engine. A nil embed client defaults to
// faceembed.StubClient{}; a nil grabber defaults to an ffmpeg-backed one.
func New(db *database.Database, embed faceembed.Client, grabber *frameextract.Grabber) *Engine {
	if embed == nil {
		embed = faceembed.StubClient{}
	}
	if grabber == nil {
		grabber = frameextract.New()
	}
	return &Engine{db: db, embed: embed, grabber: grabber}
}

// primaryOrFallbackEncoding resolves a FaceID's reference vector: its
// user-chosen primary_encoding_id if set and valid, else the encoding with
// the highest quality_score (ties broken by confidence).
func (e *Engine) primaryOrFallbackEncoding(encodings []database.FaceEncoding, primaryID *int64) *database.FaceEncoding {
	if primaryID != nil {
		for i := range encodings {
			if encodings[i].ID == *primaryID {
				return &encodings[i]
			}
		}
	}
	var best *database.FaceEncoding
	for i := range encodings {
		c := &encodings[i]
		if best == nil || betterEncoding(c, best) {
			best = c
		}
	}
	return best
}

func betterEncoding(a, b *database.FaceEncoding) bool {
	aq, bq := scoreOf(a.QualityScore), scoreOf(b.QualityScore)
	if aq != bq {
		return aq > bq
	}
	return scoreOf(a.Confidence) > scoreOf(b.Confidence)
}

func scoreOf(p *float64) float64 {
	if p == nil {
		return -1
	}
	return *p
}
