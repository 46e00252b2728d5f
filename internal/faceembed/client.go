// Package faceembed defines the boundary to an external 512-D face
// embedding model, treated as an external function embed(image) ->
// (vector, score). Grounded on the FaceExtractionClient interface and
// deterministic stub embedding in
// virtengine-virtengine/pkg/inference/face_extractor.go.
package faceembed

import (
	"context"
	"crypto/sha256"
	"math"
)

// EmbeddingDim is the fixed descriptor size for a FaceEncoding vector.
const EmbeddingDim = 512

// Result is what embed(image) -> (vector, score) returns.
type Result struct {
	Embedding  []float32
	Confidence float64
}

// Client is the pluggable face-embedding boundary. A real deployment wires
// in a model server; tests and the stub path use StubClient.
type Client interface {
	Embed(ctx context.Context, imageBytes []byte) (*Result, error)
	IsHealthy() bool
}

// StubClient produces a deterministic embedding from the SHA-256 of the
// input image bytes, in place of a real model call. It lets the rest of
// the Face Engine (search, merge, cleanup) be developed and tested against
// stable, repeatable vectors, same purpose as face_extractor.go's
// generateDeterministicEmbedding fallback.
type StubClient struct{}

var _ Client = StubClient{}

// Embed returns a deterministic, L2-normalized 512-D vector derived from
// imageBytes, with a fixed stub confidence.
func (StubClient) Embed(_ context.Context, imageBytes []byte) (*Result, error) {
	vec := make([]float32, EmbeddingDim)
	if len(imageBytes) == 0 {
		return &Result{Embedding: vec, Confidence: 0}, nil
	}

	hash := sha256.Sum256(imageBytes)
	for i := 0; i < EmbeddingDim; i++ {
		b := hash[i%len(hash)]
		vec[i] = (float32(b) / 127.5) - 1.0
	}
	L2Normalize(vec)

	return &Result{Embedding: vec, Confidence: 0.85}, nil
}

// IsHealthy reports true; the stub has no external dependency to fail.
func (StubClient) IsHealthy() bool { return true }

// L2Normalize scales v in place to unit length. No-op on a zero vector.
func L2Normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm <= 1e-10 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
