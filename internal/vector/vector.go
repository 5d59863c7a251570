// Package vector holds the numeric primitives shared by the extractor, the store and the
// similarity code: L2 normalization, cosine similarity and the format-tolerant parser for
// stored embeddings.
package vector

import "math"

// Epsilon guards every division by a vector norm.
const Epsilon = 1e-12

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// L2Normalize returns a unit-length copy of v.
// An all-zero (or empty) vector is returned as an all-zero copy instead of dividing by zero.
func L2Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot computes the dot product of a and b over their common prefix.
// Components missing from the shorter vector count as zero.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := range n {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine computes dot(a,b) / (|a|*|b| + Epsilon).
// Returns 0 for empty or zero vectors, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	s := Dot(a, b) / (Norm(a)*Norm(b) + Epsilon)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// IsZero reports whether every component of v is zero. An empty vector is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
