package search

import (
	"math"

	"github.com/patrikhermansson/cbir/core"
)

// Weighting is the optional term weighting applied to cached and query vectors alike.
//
// TermFrequency scales each component v to sign(v)*ln(1+|v|). InverseDocumentFrequency
// multiplies component d by ln(N/df_d), where df_d counts the cached vectors with a
// non-zero component d; components no cached vector uses get weight zero. Normalize
// scales the result to unit L2 norm.
type Weighting struct {
	TermFrequency            bool
	InverseDocumentFrequency bool
	Normalize                bool
}

// Enabled reports whether any transform is switched on.
func (w Weighting) Enabled() bool {
	return w.TermFrequency || w.InverseDocumentFrequency || w.Normalize
}

// idfTable computes ln(N/df) per dimension.
func idfTable(df []int, n int) []float64 {
	idf := make([]float64, len(df))
	for d, count := range df {
		if count > 0 {
			idf[d] = math.Log(float64(n) / float64(count))
		}
	}
	return idf
}

// apply returns the weighted copy of v. idf is ignored unless it has one weight per
// component, which leaves an empty cache unweighted.
func (w Weighting) apply(v []float32, idf []float64) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if !w.Enabled() {
		return out
	}
	for i, x := range out {
		f := float64(x)
		if w.TermFrequency {
			f = math.Copysign(math.Log1p(math.Abs(f)), f)
		}
		if w.InverseDocumentFrequency && len(idf) == len(v) {
			f *= idf[i]
		}
		out[i] = float32(f)
	}
	if w.Normalize {
		core.NormalizeVector(out)
	}
	return out
}
