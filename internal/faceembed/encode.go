package faceembed

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// ToBase64 serializes a float32 vector as little-endian bytes, base64
// encoded — the on-the-wire and at-rest format for FaceEncoding.encoding
// (512 float32 = 2048 bytes, ~2.7KB as base64).
func ToBase64(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// FromBase64 is the inverse of ToBase64.
func FromBase64(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 embedding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding byte length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
