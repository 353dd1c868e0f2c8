package filter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

// LSA reranks by L1 distance after a low-rank reconstruction of the matrix
// stacking the query (row 0) and all candidates.
type LSA struct {
	source fieldSource
	// Dimensions is the number of singular values kept. Zero keeps a tenth of
	// the rank, at least one.
	Dimensions int
}

// NewLSA checks that kind is registered and returns the filter.
func NewLSA(reader DocumentReader, field string, kind core.Kind, dimensions int) (*LSA, error) {
	if _, err := core.LookupKind(kind); err != nil {
		return nil, err
	}
	if dimensions < 0 {
		return nil, fmt.Errorf("lsa: negative dimensions %d", dimensions)
	}
	return &LSA{source: fieldSource{reader: reader, field: field, kind: kind}, Dimensions: dimensions}, nil
}

func (l *LSA) Filter(ctx context.Context, results []search.Result, query store.Document) ([]search.Result, error) {
	q, err := l.source.query(query)
	if err != nil {
		return nil, err
	}
	kept, vectors, err := l.source.candidates(ctx, results, q)
	if err != nil || len(kept) == 0 {
		return kept, err
	}

	rows, cols := len(kept)+1, q.Dimensions()
	data := mat.NewDense(rows, cols, nil)
	for j, v := range q.Values {
		data.Set(0, j, float64(v))
	}
	for i, vec := range vectors {
		for j, v := range vec {
			data.Set(i+1, j, float64(v))
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(data, mat.SVDThin); !ok {
		return nil, ErrFactorization
	}
	values := svd.Values(nil)
	k := l.keep(values, rows, cols)

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var reduced mat.Dense
	reduced.Product(u.Slice(0, rows, 0, k), mat.NewDiagDense(k, values[:k]), v.Slice(0, cols, 0, k).T())

	queryRow := reduced.RawRowView(0)
	for i := range kept {
		kept[i].Distance = floats.Distance(queryRow, reduced.RawRowView(i+1), 1)
	}
	search.SortResults(kept)
	log.Debug().Int("rank", rank(values, rows, cols)).Int("kept", k).Msg("LSA rerank")
	return kept, nil
}

// keep returns the number of singular values to retain.
func (l *LSA) keep(values []float64, rows, cols int) int {
	k := l.Dimensions
	if k == 0 {
		k = rank(values, rows, cols) / 10
	}
	return max(1, min(k, len(values)))
}

// rank counts singular values above the usual numerical tolerance.
func rank(values []float64, rows, cols int) int {
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	tol := float64(max(rows, cols)) * values[0] * 2.220446049250313e-16
	r := 0
	for _, s := range values {
		if s > tol {
			r++
		}
	}
	return r
}
