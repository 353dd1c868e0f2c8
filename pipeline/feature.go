package pipeline

import (
	"errors"
	"fmt"
	"image"

	"github.com/patrikhermansson/cbir/aggregate"
	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/extract"
	"github.com/patrikhermansson/cbir/lsh"
	"github.com/patrikhermansson/cbir/store"
)

// Feature describes one field of every indexed document: either a global
// extractor, or a local extractor whose descriptors are aggregated against a
// codebook. An optional hasher adds the hash codes of the vector under HashField.
type Feature struct {
	Field      string
	Global     extract.Global
	Local      extract.Local
	Aggregator *aggregate.Aggregator
	Hasher     lsh.Hasher
	HashField  string
	// Half stores the vector in half precision.
	Half bool
}

func (f *Feature) validate() error {
	if f.Field == "" {
		return errors.New("feature field name is empty")
	}
	if f.Field == store.IDField {
		return fmt.Errorf("feature field %q is reserved", f.Field)
	}
	switch {
	case f.Global != nil && f.Local != nil:
		return fmt.Errorf("feature %q: global and local extractor both set", f.Field)
	case f.Global == nil && f.Local == nil:
		return fmt.Errorf("feature %q: no extractor", f.Field)
	case f.Local != nil && f.Aggregator == nil:
		return fmt.Errorf("feature %q: local extractor needs an aggregator", f.Field)
	case f.Local != nil && f.Aggregator.Codebook().Dimensions() != f.Local.Dimensions():
		return fmt.Errorf("feature %q: %w: extractor has %d dimensions, codebook %d", f.Field,
			aggregate.ErrIncompatibleCodebook, f.Local.Dimensions(), f.Aggregator.Codebook().Dimensions())
	}
	if f.Hasher != nil && f.HashField == "" {
		f.HashField = f.Field + "_hash"
	}
	return nil
}

// vector computes the feature vector of img.
func (f *Feature) vector(img image.Image) (core.FeatureVector, error) {
	if f.Global != nil {
		return f.Global.Extract(img)
	}
	descriptors, err := f.Local.Extract(img)
	if err != nil {
		return core.FeatureVector{}, err
	}
	agg, err := f.Aggregator.Aggregate(descriptors)
	if err != nil {
		return core.FeatureVector{}, err
	}
	return agg.Feature(), nil
}

// fill extracts the feature from img and stores it into fields.
func (f *Feature) fill(img image.Image, fields map[string][]byte) error {
	fv, err := f.vector(img)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Field, err)
	}
	if f.Half {
		fields[f.Field] = fv.EncodeHalf()
	} else {
		fields[f.Field] = fv.Encode()
	}
	if f.Hasher != nil {
		codes, err := f.Hasher.Generate(fv.Values)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.HashField, err)
		}
		fields[f.HashField] = lsh.EncodeCodes(codes)
	}
	return nil
}
