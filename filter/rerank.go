package filter

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

// Rerank replaces coarse distances with exact distances on another field.
type Rerank struct {
	source   fieldSource
	distance core.DistanceFunc
}

// NewRerank resolves kind's distance now, so an unknown kind fails before any query.
func NewRerank(reader DocumentReader, field string, kind core.Kind) (*Rerank, error) {
	distance, err := core.LookupKind(kind)
	if err != nil {
		return nil, err
	}
	return &Rerank{source: fieldSource{reader: reader, field: field, kind: kind}, distance: distance}, nil
}

func (r *Rerank) Filter(ctx context.Context, results []search.Result, query store.Document) ([]search.Result, error) {
	q, err := r.source.query(query)
	if err != nil {
		return nil, err
	}
	kept, vectors, err := r.source.candidates(ctx, results, q)
	if err != nil {
		return nil, err
	}
	for i := range kept {
		kept[i].Distance = r.distance(q.Values, vectors[i])
	}
	search.SortResults(kept)
	log.Debug().Str("field", r.source.field).Int("in", len(results)).Int("out", len(kept)).Msg("Reranked")
	return kept, nil
}
