// Package aggregate turns a variable number of local descriptors into one fixed-length
// vector using a trained codebook.
package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/kmeans"
)

var (
	// ErrIncompatibleCodebook is returned when a descriptor does not match the codebook dimensionality.
	ErrIncompatibleCodebook = errors.New("descriptor incompatible with codebook")

	// ErrCodebookMismatch is returned when aggregated vectors built from different codebooks are compared.
	ErrCodebookMismatch = errors.New("aggregated vectors come from different codebooks")

	// ErrNonFinite is returned for a descriptor with a NaN or infinite component.
	ErrNonFinite = errors.New("descriptor has NaN or Inf components")
)

// Mode selects the aggregation scheme.
type Mode int

const (
	// BOVW counts nearest-centroid assignments (bag of visual words).
	BOVW Mode = iota
	// VLAD sums residuals to the nearest centroid per cluster.
	VLAD
)

func (m Mode) String() string {
	switch m {
	case BOVW:
		return "bovw"
	case VLAD:
		return "vlad"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Kind returns the feature kind produced by the mode.
func (m Mode) Kind() core.Kind {
	if m == VLAD {
		return core.KindVLAD
	}
	return core.KindBOVW
}

// ParseMode parses "bovw" or "vlad".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bovw", "":
		return BOVW, nil
	case "vlad":
		return VLAD, nil
	default:
		return 0, fmt.Errorf("unknown aggregation mode %q", s)
	}
}

// Normalization selects the BOVW histogram normalization. VLAD is always L2-normalized.
type Normalization int

const (
	NormNone Normalization = iota
	NormL1
	NormL2
)

// ParseNormalization parses "none", "l1" or "l2".
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return NormNone, nil
	case "l1":
		return NormL1, nil
	case "l2":
		return NormL2, nil
	default:
		return 0, fmt.Errorf("unknown normalization %q", s)
	}
}

// AggregatedVector is the fixed-length result of an aggregation.
// It remembers the codebook it was built with.
type AggregatedVector struct {
	CodebookID string
	Mode       Mode
	Values     []float32
}

// Feature converts the aggregated vector into a feature vector of the mode's kind,
// qualified by the codebook ID so vectors of different codebooks never compare.
func (a AggregatedVector) Feature() core.FeatureVector {
	return core.NewFeatureVector(a.Mode.Kind().Qualify(a.CodebookID), a.Values)
}

// Distance compares two aggregated vectors built from the same codebook and mode.
func (a AggregatedVector) Distance(other AggregatedVector, distance core.DistanceFunc) (float64, error) {
	if a.CodebookID != other.CodebookID || a.Mode != other.Mode {
		return 0, fmt.Errorf("%w: %s/%s vs %s/%s", ErrCodebookMismatch, a.CodebookID, a.Mode, other.CodebookID, other.Mode)
	}
	if len(a.Values) != len(other.Values) {
		return 0, core.ErrDimensionMismatch
	}
	return distance(a.Values, other.Values), nil
}

// Aggregator aggregates descriptor sets against one codebook.
// It holds no mutable state and may be shared by concurrent goroutines.
type Aggregator struct {
	codebook      *kmeans.Codebook
	mode          Mode
	normalization Normalization
	distance      core.DistanceFunc
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNormalization sets the BOVW normalization.
func WithNormalization(n Normalization) Option {
	return func(a *Aggregator) { a.normalization = n }
}

// WithDistance sets the distance used to pick the nearest centroid. Defaults to Euclidean.
func WithDistance(distance core.DistanceFunc) Option {
	return func(a *Aggregator) { a.distance = distance }
}

// New creates an aggregator for codebook.
func New(codebook *kmeans.Codebook, mode Mode, opts ...Option) (*Aggregator, error) {
	if codebook == nil || codebook.Size() == 0 {
		return nil, kmeans.ErrEmptyCodebook
	}
	if mode != BOVW && mode != VLAD {
		return nil, fmt.Errorf("unknown aggregation mode %d", mode)
	}
	a := &Aggregator{codebook: codebook, mode: mode, distance: core.Euclidean}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Mode returns the aggregation mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// Codebook returns the shared codebook.
func (a *Aggregator) Codebook() *kmeans.Codebook { return a.codebook }

// Length returns the output length: vocabulary size for BOVW, size times dimensionality for VLAD.
func (a *Aggregator) Length() int {
	if a.mode == VLAD {
		return a.codebook.Size() * a.codebook.Dimensions()
	}
	return a.codebook.Size()
}

// Aggregate builds the fixed-length vector for descriptors. An empty set yields a zero vector.
func (a *Aggregator) Aggregate(descriptors []core.FeatureVector) (AggregatedVector, error) {
	dim := a.codebook.Dimensions()
	for i, d := range descriptors {
		if len(d.Values) != dim {
			return AggregatedVector{}, fmt.Errorf("%w: descriptor %d has %d dimensions, codebook has %d",
				ErrIncompatibleCodebook, i, len(d.Values), dim)
		}
		if core.HasNaN(d.Values) {
			return AggregatedVector{}, fmt.Errorf("%w: descriptor %d", ErrNonFinite, i)
		}
	}

	centroids := a.codebook.Centroids()
	out := make([]float32, a.Length())
	switch a.mode {
	case BOVW:
		for _, d := range descriptors {
			best, _ := core.Nearest(d.Values, centroids, a.distance)
			out[best]++
		}
		switch a.normalization {
		case NormL1:
			core.NormalizeL1(out)
		case NormL2:
			core.NormalizeVector(out)
		}
	case VLAD:
		for _, d := range descriptors {
			best, _ := core.Nearest(d.Values, centroids, a.distance)
			block := out[best*dim : (best+1)*dim]
			for j, v := range d.Values {
				block[j] += v - centroids[best][j]
			}
		}
		core.NormalizeVector(out)
	}
	return AggregatedVector{CodebookID: a.codebook.ID, Mode: a.mode, Values: out}, nil
}
