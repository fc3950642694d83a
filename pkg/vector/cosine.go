package vector

import (
	"math"

	pkgerrors "bms-backend/pkg/errors"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Both vectors must have the same length; a zero vector scores 0 against
// everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, pkgerrors.NewDimensionMismatchError(len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp float drift so callers can rely on the interval.
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score, nil
}

// CheckDimension validates a vector's length against the expected dimension
func CheckDimension(vec []float32, expected int) error {
	if len(vec) != expected {
		return pkgerrors.NewDimensionMismatchError(expected, len(vec))
	}
	return nil
}
