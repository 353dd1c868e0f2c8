package core

import (
	"math"
	"sync"
)

// NormalizeVector scales vec in place to unit L2 norm. Zero vectors are left untouched.
func NormalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// NormalizeL1 scales vec in place so its absolute values sum to one.
func NormalizeL1(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += math.Abs(float64(v))
	}
	if sum == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / sum)
	}
}

// NormalizeBatch normalizes multiple vectors in a batch using goroutines.
func NormalizeBatch(vecs [][]float32) {
	var wg sync.WaitGroup
	for i := range vecs {
		wg.Add(1)
		go func(vec []float32) {
			defer wg.Done()
			NormalizeVector(vec)
		}(vecs[i])
	}
	wg.Wait()
}

// Sub returns a - b as a new slice.
func Sub(a, b []float32) []float32 {
	mustMatch(a, b)
	res := make([]float32, len(a))
	for i := range a {
		res[i] = a[i] - b[i]
	}
	return res
}

// AddInto accumulates src into dst.
func AddInto(dst, src []float32) {
	mustMatch(dst, src)
	for i := range src {
		dst[i] += src[i]
	}
}

// HasNaN reports whether any component is NaN or infinite.
func HasNaN(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}

// Nearest returns the index of the closest candidate to vec and its distance.
// Ties resolve to the lowest index, and so do NaN distances: any non-empty
// candidate list yields a valid index. It returns -1 for an empty candidate list.
func Nearest(vec []float32, candidates [][]float32, distance DistanceFunc) (int, float64) {
	if len(candidates) == 0 {
		return -1, math.MaxFloat64
	}
	best := 0
	bestDist := distance(vec, candidates[0])
	for i := 1; i < len(candidates); i++ {
		d := distance(vec, candidates[i])
		if d < bestDist || (math.IsNaN(bestDist) && !math.IsNaN(d)) {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}
