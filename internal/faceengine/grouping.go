package faceengine

import (
	"context"
	"fmt"

	"clipper/internal/faceembed"
	"clipper/internal/unionfind"
)

// CrossFaceGroup is one cluster of FaceIDs whose primary-or-fallback
// encodings are mutually similar above threshold.
type CrossFaceGroup struct {
	Members []CrossFaceMember `json:"members"`
}

// CrossFaceMember is one FaceID within a CrossFaceGroup, scored against the
// group's first member.
type CrossFaceMember struct {
	FaceID     int64   `json:"faceId"`
	FaceName   string  `json:"faceName"`
	Similarity float64 `json:"similarity"`
}

// CrossFaceGrouping compares the primary-or-fallback encoding of every
// FaceID pairwise and returns groups of size ≥ 2 connected by cosine >
// threshold (default CrossFaceDefaultThreshold).
func (e *Engine) CrossFaceGrouping(ctx context.Context, threshold float64) ([]CrossFaceGroup, error) {
	if threshold <= 0 {
		threshold = CrossFaceDefaultThreshold
	}

	faces, err := e.db.ListFaceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}

	vectors := make([][]float32, len(faces))
	for i, f := range faces {
		encodings, err := e.db.ListEncodingsForFace(ctx, f.ID)
		if err != nil || len(encodings) == 0 {
			continue
		}
		ref := e.primaryOrFallbackEncoding(encodings, f.PrimaryEncodingID)
		if ref == nil {
			continue
		}
		vec, err := faceembed.FromBase64(ref.Encoding)
		if err != nil {
			continue
		}
		vectors[i] = vec
	}

	dsu := unionfind.New(len(faces))
	similarity := make(map[[2]int]float64)
	for i := 0; i < len(faces); i++ {
		if vectors[i] == nil {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if vectors[j] == nil {
				continue
			}
			sim := faceembed.Cosine(vectors[i], vectors[j])
			similarity[[2]int{i, j}] = sim
			if sim > threshold {
				dsu.Union(i, j)
			}
		}
	}

	groups := dsu.Groups(2)
	result := make([]CrossFaceGroup, 0, len(groups))
	for _, group := range groups {
		first := group[0]
		members := []CrossFaceMember{{FaceID: faces[first].ID, FaceName: faces[first].Name, Similarity: 1.0}}
		for _, idx := range group[1:] {
			key := [2]int{first, idx}
			if first > idx {
				key = [2]int{idx, first}
			}
			members = append(members, CrossFaceMember{
				FaceID:     faces[idx].ID,
				FaceName:   faces[idx].Name,
				Similarity: similarity[key],
			})
		}
		result = append(result, CrossFaceGroup{Members: members})
	}
	return result, nil
}

// CompareMatrix is the full pairwise similarity matrix for a set of FaceIDs.
type CompareMatrix struct {
	FaceIDs []int64     `json:"faceIds"`
	Matrix  [][]float64 `json:"matrix"`
}

// Compare returns the full pairwise cosine similarity matrix for the given
// FaceIDs, using each face's primary-or-fallback encoding.
func (e *Engine) Compare(ctx context.Context, faceIDs []int64) (*CompareMatrix, error) {
	vectors := make([][]float32, len(faceIDs))
	for i, id := range faceIDs {
		face, err := e.db.GetFaceID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load face %d: %w", id, err)
		}
		encodings, err := e.db.ListEncodingsForFace(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load encodings for face %d: %w", id, err)
		}
		if ref := e.primaryOrFallbackEncoding(encodings, face.PrimaryEncodingID); ref != nil {
			if vec, err := faceembed.FromBase64(ref.Encoding); err == nil {
				vectors[i] = vec
			}
		}
	}

	matrix := make([][]float64, len(faceIDs))
	for i := range faceIDs {
		matrix[i] = make([]float64, len(faceIDs))
		for j := range faceIDs {
			if i == j {
				matrix[i][j] = 1.0
				continue
			}
			if vectors[i] == nil || vectors[j] == nil {
				continue
			}
			matrix[i][j] = faceembed.Cosine(vectors[i], vectors[j])
		}
	}
	return &CompareMatrix{FaceIDs: faceIDs, Matrix: matrix}, nil
}
