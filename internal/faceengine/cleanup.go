package faceengine

import (
	"context"
	"fmt"
	"sort"

	"clipper/internal/faceembed"
)

// EncodingClassification buckets a CleanupView entry against the
// reference (primary or fallback) encoding for its FaceID.
type EncodingClassification string

const (
	ClassPrimary    EncodingClassification = "primary"
	ClassGood       EncodingClassification = "good"
	ClassAcceptable EncodingClassification = "acceptable"
	ClassPoor       EncodingClassification = "poor"
)

// CleanupEntry is one FaceEncoding scored against its FaceID's reference
// vector for the cleanup view.
type CleanupEntry struct {
	EncodingID     int64                   `json:"encodingId"`
	Similarity     float64                 `json:"similarity"`
	Classification EncodingClassification  `json:"classification"`
	Thumbnail      *string                 `json:"thumbnail,omitempty"`
}

// CleanupView scores every encoding of faceID against the primary (or
// fallback) encoding and classifies it primary/good(≥0.75)/acceptable(≥τ)
// /poor(<τ), primary first then descending similarity.
func (e *Engine) CleanupView(ctx context.Context, faceID int64, tau float64) ([]CleanupEntry, error) {
	if tau <= 0 {
		tau = CleanupDefaultThreshold
	}
	face, err := e.db.GetFaceID(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("load face: %w", err)
	}
	encodings, err := e.db.ListEncodingsForFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("load encodings: %w", err)
	}
	if len(encodings) == 0 {
		return nil, nil
	}

	ref := e.primaryOrFallbackEncoding(encodings, face.PrimaryEncodingID)
	refVec, err := faceembed.FromBase64(ref.Encoding)
	if err != nil {
		return nil, fmt.Errorf("decode reference encoding: %w", err)
	}

	entries := make([]CleanupEntry, 0, len(encodings))
	for _, enc := range encodings {
		var sim float64 = 1.0
		isPrimary := enc.ID == ref.ID
		if !isPrimary {
			vec, err := faceembed.FromBase64(enc.Encoding)
			if err != nil {
				continue
			}
			sim = faceembed.Cosine(refVec, vec)
		}
		entries = append(entries, CleanupEntry{
			EncodingID:     enc.ID,
			Similarity:     sim,
			Classification: classify(sim, isPrimary, tau),
			Thumbnail:      enc.Thumbnail,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EncodingID == ref.ID {
			return true
		}
		if entries[j].EncodingID == ref.ID {
			return false
		}
		return entries[i].Similarity > entries[j].Similarity
	})
	return entries, nil
}

func classify(sim float64, isPrimary bool, tau float64) EncodingClassification {
	switch {
	case isPrimary:
		return ClassPrimary
	case sim >= CleanupGoodThreshold:
		return ClassGood
	case sim >= tau:
		return ClassAcceptable
	default:
		return ClassPoor
	}
}

// DuplicateGroup is a cluster of near-duplicate encodings within one FaceID.
type DuplicateGroup struct {
	KeepEncodingID int64   `json:"keepEncodingId"`
	Suggested      []int64 `json:"suggestedForDeletion"`
}

// DuplicateEncodingsAnalysis groups a FaceID's encodings by ≥0.95 cosine
// similarity; within each group of size ≥ 2, the highest-quality encoding
// is kept and the rest are flagged for deletion.
func (e *Engine) DuplicateEncodingsAnalysis(ctx context.Context, faceID int64) ([]DuplicateGroup, error) {
	encodings, err := e.db.ListEncodingsForFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("load encodings: %w", err)
	}
	vectors := make([][]float32, len(encodings))
	for i, enc := range encodings {
		v, err := faceembed.FromBase64(enc.Encoding)
		if err != nil {
			continue
		}
		vectors[i] = v
	}

	visited := make([]bool, len(encodings))
	var groups []DuplicateGroup
	for i := range encodings {
		if visited[i] || vectors[i] == nil {
			continue
		}
		members := []int{i}
		visited[i] = true
		for j := i + 1; j < len(encodings); j++ {
			if visited[j] || vectors[j] == nil {
				continue
			}
			if faceembed.Cosine(vectors[i], vectors[j]) >= DuplicateEncodingThreshold {
				members = append(members, j)
				visited[j] = true
			}
		}
		if len(members) < 2 {
			continue
		}
		keep := members[0]
		for _, m := range members[1:] {
			if betterEncoding(&encodings[m], &encodings[keep]) {
				keep = m
			}
		}
		var suggested []int64
		for _, m := range members {
			if m != keep {
				suggested = append(suggested, encodings[m].ID)
			}
		}
		groups = append(groups, DuplicateGroup{KeepEncodingID: encodings[keep].ID, Suggested: suggested})
	}
	return groups, nil
}
