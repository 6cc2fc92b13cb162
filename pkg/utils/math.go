package utils

import "math"

// NormalizeL2 scales v in place to unit length. A zero vector is left as is.
func NormalizeL2(v []float32) {
	n := math.Sqrt(Dot(v, v))
	if n == 0 {
		return
	}
	scale := float32(1 / n)
	for i := range v {
		v[i] *= scale
	}
}

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float32) float64 {
	if len(b) < len(a) {
		a = a[:len(b)]
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// SquaredL2 returns the squared euclidean distance between a and b, the
// metric Chroma reports for "l2" collections.
func SquaredL2(a, b []float32) float64 {
	if len(b) < len(a) {
		a = a[:len(b)]
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
