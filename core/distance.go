package core

import (
	"fmt"
	"math"
)

// Distances is a map of human–readable names to distance functions.
// You can use it to choose a distance metric by name.
var Distances = map[string]DistanceFunc{
	"euclidean":         Euclidean,
	"squared_euclidean": SquaredEuclidean,
	"manhattan":         Manhattan,
	"cosine":            CosineDistance,
	"tanimoto":          Tanimoto,
	"angular":           AngularDistance,
}

// DistanceFunc computes the distance between two vectors.
// a: the first vector.
// b: the second vector.
// Returns the computed distance as a float64.
type DistanceFunc func(a, b []float32) float64

// DistanceByName returns the distance function registered under name.
func DistanceByName(name string) (DistanceFunc, error) {
	fn, ok := Distances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDistance, name)
	}
	return fn, nil
}

func mustMatch(a, b []float32) {
	if len(a) != len(b) {
		panic("vectors must have the same length")
	}
}

// Euclidean computes the Euclidean (L2) distance between two vectors.
func Euclidean(a, b []float32) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// SquaredEuclidean computes the squared Euclidean distance between two vectors.
func SquaredEuclidean(a, b []float32) float64 {
	mustMatch(a, b)
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Manhattan computes the Manhattan (L1) distance between two vectors.
func Manhattan(a, b []float32) float64 {
	mustMatch(a, b)
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// CosineDistance computes the cosine distance between two vectors.
// A zero vector is at distance 1 from everything except another zero vector.
func CosineDistance(a, b []float32) float64 {
	mustMatch(a, b)
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 && nb == 0 {
		return 0
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	}
	return 1 - sim
}

// Tanimoto computes the Tanimoto (extended Jaccard) distance between two vectors.
func Tanimoto(a, b []float32) float64 {
	mustMatch(a, b)
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := na + nb - dot
	if denom == 0 {
		return 0
	}
	return 1 - dot/denom
}

// AngularDistance computes the angle between two vectors in radians.
func AngularDistance(a, b []float32) float64 {
	sim := 1 - CosineDistance(a, b)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return math.Acos(sim)
}
