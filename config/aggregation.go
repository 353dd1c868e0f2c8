package config

import (
	"github.com/patrikhermansson/cbir/aggregate"
	"github.com/patrikhermansson/cbir/kmeans"
)

func (a *Aggregation) build() (*aggregate.Aggregator, error) {
	mode, err := aggregate.ParseMode(a.Mode)
	if err != nil {
		return nil, err
	}
	norm, err := aggregate.ParseNormalization(a.Normalization)
	if err != nil {
		return nil, err
	}
	cb, err := kmeans.LoadCodebook(a.Codebook)
	if err != nil {
		return nil, err
	}
	return aggregate.New(cb, mode, aggregate.WithNormalization(norm))
}
