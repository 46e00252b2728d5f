// Package phash computes a 64-bit perceptual hash over a single decoded
// frame: an 8x8 DCT-II over a 32x32 grayscale-reduced frame, producing a
// 64-bit hash from the low-frequency coefficients compared against their
// median.
//
// No repo in the retrieval pack imports a perceptual-hash library; this is
// a small, self-contained algorithm with no I/O or wire format, so it is
// implemented directly rather than reached for as a dependency (see
// DESIGN.md's union-find/pHash justification).
package phash

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	reduceSize = 32 // frame is reduced to reduceSize x reduceSize before the DCT
	hashSize   = 8  // low-frequency coefficients kept per axis -> 64-bit hash
)

// Compute produces a 16-character hex-encoded 64-bit perceptual hash from a
// decoded image. The image is converted to grayscale and reduced to
// reduceSize x reduceSize with a Lanczos filter, matching the resize idiom
// used throughout the thumbnail pipeline.
func Compute(img image.Image) (string, error) {
	gray := imaging.Grayscale(img)
	reduced := imaging.Resize(gray, reduceSize, reduceSize, imaging.Lanczos)

	pixels := make([][]float64, reduceSize)
	for y := 0; y < reduceSize; y++ {
		pixels[y] = make([]float64, reduceSize)
		for x := 0; x < reduceSize; x++ {
			r, _, _, _ := reduced.At(x, y).RGBA()
			pixels[y][x] = float64(r >> 8)
		}
	}

	coeffs := dct2D(pixels)

	// Low frequencies live in the top-left hashSize x hashSize block,
	// excluding the DC term (0,0) which only encodes average brightness.
	var values []float64
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			values = append(values, coeffs[y][x])
		}
	}

	median := medianOf(values)

	var hash uint64
	bit := uint(0)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if coeffs[y][x] > median {
				hash |= 1 << bit
			}
			bit++
		}
	}

	return fmt.Sprintf("%016x", hash), nil
}

// dct2D runs a naive 2D DCT-II over an NxN grid, sufficient at reduceSize=32
// (1024 cells) without needing an FFT-based implementation.
func dct2D(pixels [][]float64) [][]float64 {
	n := len(pixels)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}

	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				for y := 0; y < n; y++ {
					sum += pixels[x][y] *
						math.Cos((2*float64(x)+1)*float64(u)*math.Pi/(2*float64(n))) *
						math.Cos((2*float64(y)+1)*float64(v)*math.Pi/(2*float64(n)))
				}
			}
			cu, cv := 1.0, 1.0
			if u == 0 {
				cu = 1.0 / math.Sqrt2
			}
			if v == 0 {
				cv = 1.0 / math.Sqrt2
			}
			out[u][v] = 0.25 * cu * cv * sum
		}
	}
	return out
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
