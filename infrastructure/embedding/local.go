package embedding

import (
	"context"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/sha3"

	"bms-backend/application/ports"
)

// LocalEmbedder derives a unit vector from a SHAKE-256 stream over the input
// text. It has no semantic power, but it is deterministic, dependency-free,
// and identical texts always map to identical vectors, which is what the
// development environment and the tests need.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a deterministic embedder with the given dimension
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalEmbedder{dimension: dimension}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	shake := sha3.NewShake256()
	shake.Write([]byte(text))

	buf := make([]byte, 4)
	vec := make([]float32, e.dimension)
	var norm float64
	for i := range vec {
		shake.Read(buf)
		// Map each 32-bit word to [-1, 1)
		v := float64(int32(binary.LittleEndian.Uint32(buf))) / float64(math.MaxInt32)
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

var _ ports.Embedder = (*LocalEmbedder)(nil)
