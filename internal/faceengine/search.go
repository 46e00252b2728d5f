package faceengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clipper/internal/database"
	"clipper/internal/faceembed"
	"clipper/internal/metrics"
)

// EncodingMatch is one matching FaceEncoding within a FaceMatch, sorted by
// descending similarity.
type EncodingMatch struct {
	EncodingID int64    `json:"encodingId"`
	Similarity float64  `json:"similarity"`
	Thumbnail  *string  `json:"thumbnail,omitempty"`
}

// FaceMatch groups the encodings matched for one FaceID, ordered by
// per-face best similarity.
type FaceMatch struct {
	FaceID         int64           `json:"faceId"`
	FaceName       string          `json:"faceName"`
	ActorName      *string         `json:"actorName,omitempty"`
	BestSimilarity float64         `json:"bestSimilarity"`
	Encodings      []EncodingMatch `json:"encodings"`
}

// SearchSimilar performs a linear cosine-similarity scan over every
// FaceEncoding in the catalog (excludeFaceID optionally removed), groups
// matches above minSimilarity by face, and returns the top-K faces ordered
// by descending best similarity.
func (e *Engine) SearchSimilar(ctx context.Context, query []float32, excludeFaceID *int64, minSimilarity float64, topK int) ([]FaceMatch, error) {
	start := time.Now()
	defer func() {
		metrics.FaceSearchDuration.WithLabelValues("search_similar").Observe(time.Since(start).Seconds())
	}()

	encodings, err := e.db.AllEncodings(ctx, excludeFaceID)
	if err != nil {
		return nil, fmt.Errorf("load encodings: %w", err)
	}

	type scored struct {
		enc        database.FaceEncoding
		similarity float64
	}
	byFace := make(map[int64][]scored)
	for _, enc := range encodings {
		vec, err := faceembed.FromBase64(enc.Encoding)
		if err != nil {
			continue
		}
		sim := faceembed.Cosine(query, vec)
		if sim < minSimilarity {
			continue
		}
		byFace[enc.FaceID] = append(byFace[enc.FaceID], scored{enc: enc, similarity: sim})
	}

	faceIDs := make([]int64, 0, len(byFace))
	for id := range byFace {
		faceIDs = append(faceIDs, id)
	}

	matches := make([]FaceMatch, 0, len(faceIDs))
	for _, faceID := range faceIDs {
		face, err := e.db.GetFaceID(ctx, faceID)
		if err != nil {
			continue
		}
		items := byFace[faceID]
		sort.Slice(items, func(i, j int) bool { return items[i].similarity > items[j].similarity })

		var actorName *string
		if face.ActorID != nil {
			if actor, err := e.db.GetActor(ctx, *face.ActorID); err == nil {
				actorName = &actor.Name
			}
		}

		encMatches := make([]EncodingMatch, 0, len(items))
		for _, it := range items {
			encMatches = append(encMatches, EncodingMatch{
				EncodingID: it.enc.ID,
				Similarity: it.similarity,
				Thumbnail:  it.enc.Thumbnail,
			})
		}

		matches = append(matches, FaceMatch{
			FaceID:         faceID,
			FaceName:       face.Name,
			ActorName:      actorName,
			BestSimilarity: items[0].similarity,
			Encodings:      encMatches,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].BestSimilarity > matches[j].BestSimilarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
