// Package filter refines a coarse result list using another feature field.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

var (
	ErrMissingQueryField = errors.New("query document lacks the filter field")
	ErrFactorization     = errors.New("singular value decomposition failed")
)

// Filter reorders (and possibly shortens) results for the query document.
type Filter interface {
	Filter(ctx context.Context, results []search.Result, query store.Document) ([]search.Result, error)
}

// DocumentReader gives random access to stored documents. *store.Store implements it.
type DocumentReader interface {
	Document(id uint32) (store.Document, error)
}

// Chain applies filters in order.
type Chain []Filter

func (c Chain) Filter(ctx context.Context, results []search.Result, query store.Document) ([]search.Result, error) {
	var err error
	for _, f := range c {
		if results, err = f.Filter(ctx, results, query); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// fieldSource decodes one feature field of the query and of candidate documents.
type fieldSource struct {
	reader DocumentReader
	field  string
	kind   core.Kind
}

func (s fieldSource) query(doc store.Document) (core.FeatureVector, error) {
	raw, ok := doc.Field(s.field)
	if !ok {
		return core.FeatureVector{}, fmt.Errorf("%w: %s", ErrMissingQueryField, s.field)
	}
	fv, err := core.DecodeFeature(raw)
	if err != nil {
		return core.FeatureVector{}, fmt.Errorf("query field %s: %w", s.field, err)
	}
	if !s.kind.Accepts(fv.Kind) {
		return core.FeatureVector{}, fmt.Errorf("query field %s: %w: %s != %s", s.field, core.ErrKindMismatch, fv.Kind, s.kind)
	}
	return fv, nil
}

// candidates loads the field of every result. Results whose document is gone or
// lacks a field of exactly the query's kind and dimensions are dropped with a notice.
func (s fieldSource) candidates(ctx context.Context, results []search.Result, q core.FeatureVector) ([]search.Result, [][]float32, error) {
	kept := make([]search.Result, 0, len(results))
	vectors := make([][]float32, 0, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		doc, err := s.reader.Document(r.DocID)
		if err != nil {
			log.Info().Err(err).Str("doc", r.ID).Msg("Dropping result, document unavailable")
			continue
		}
		raw, ok := doc.Field(s.field)
		if !ok {
			log.Info().Str("doc", r.ID).Str("field", s.field).Msg("Dropping result without filter field")
			continue
		}
		fv, err := core.DecodeFeature(raw)
		if err != nil || fv.Kind != q.Kind || fv.Dimensions() != q.Dimensions() {
			log.Info().Err(err).Str("doc", r.ID).Str("field", s.field).Msg("Dropping result with unusable filter field")
			continue
		}
		kept = append(kept, r)
		vectors = append(vectors, fv.Values)
	}
	return kept, vectors, nil
}
