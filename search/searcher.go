// Package search answers nearest-neighbor queries over one feature field of a store.
//
// A Searcher reads every live document once and keeps the decoded vectors in
// memory in document order. Queries scan the cache in parallel, one bounded
// ResultSet per worker, and merge them into a deterministic ranking.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/lsh"
	"github.com/patrikhermansson/cbir/metrics"
	"github.com/patrikhermansson/cbir/store"
)

var (
	ErrInvalidMaxHits = errors.New("maxHits must be positive")
	ErrNotCached      = errors.New("document not in search cache")
	ErrMissingField   = errors.New("document lacks the searched field")
)

// Reader is the store side of a searcher. *store.Store implements it.
type Reader interface {
	Scan(fn func(id uint32, doc store.Document) error) error
}

type entry struct {
	docID    uint32
	id       string
	raw      []float32
	weighted []float32
	codes    []int
}

// Searcher is safe for concurrent queries once constructed.
type Searcher struct {
	field     string
	kind      core.Kind
	distance  core.DistanceFunc
	weighting Weighting
	hashField string
	workers   int
	cacheTTL  time.Duration

	dims    int
	entries []entry
	byDoc   map[uint32]int
	df      []int
	idf     []float64

	results *gocache.Cache
	metrics *metrics.Search
}

type Option func(*Searcher)

// WithWeighting enables term weighting.
func WithWeighting(w Weighting) Option { return func(s *Searcher) { s.weighting = w } }

// WithWorkers sets the number of scan goroutines per query.
func WithWorkers(n int) Option { return func(s *Searcher) { s.workers = n } }

// WithDistance overrides the distance registered for the kind.
func WithDistance(d core.DistanceFunc) Option { return func(s *Searcher) { s.distance = d } }

// WithResultCache memoizes query results for ttl.
func WithResultCache(ttl time.Duration) Option { return func(s *Searcher) { s.cacheTTL = ttl } }

// WithHashField loads precomputed hash codes from the named field, for HashIndex.
func WithHashField(name string) Option { return func(s *Searcher) { s.hashField = name } }

// WithMetrics records queries on m.
func WithMetrics(m *metrics.Search) Option { return func(s *Searcher) { s.metrics = m } }

// New loads field of every live document of reader. Documents without the field
// are skipped. The kind must be registered unless WithDistance is given.
func New(reader Reader, field string, kind core.Kind, opts ...Option) (*Searcher, error) {
	s := &Searcher{
		field:   field,
		kind:    kind,
		workers: runtime.NumCPU(),
		byDoc:   map[uint32]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.distance == nil {
		d, err := core.LookupKind(kind)
		if err != nil {
			return nil, err
		}
		s.distance = d
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.metrics == nil {
		s.metrics = metrics.NewSearch(nil)
	}
	if s.cacheTTL > 0 {
		s.results = gocache.New(s.cacheTTL, 2*s.cacheTTL)
	}

	skipped := 0
	err := reader.Scan(func(id uint32, doc store.Document) error {
		raw, ok := doc.Field(field)
		if !ok {
			skipped++
			log.Debug().Str("doc", doc.ID).Str("field", field).Msg("Document has no such field")
			return nil
		}
		fv, err := core.DecodeFeature(raw)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		if !kind.Accepts(fv.Kind) {
			return fmt.Errorf("document %s: %w: field %s holds %s, want %s", doc.ID, core.ErrKindMismatch, field, fv.Kind, kind)
		}
		if len(s.entries) > 0 && fv.Kind != s.kind {
			return fmt.Errorf("document %s: %w: field %s mixes %s and %s", doc.ID, core.ErrKindMismatch, field, s.kind, fv.Kind)
		}
		if len(s.entries) == 0 {
			s.kind = fv.Kind
			s.dims = fv.Dimensions()
			s.df = make([]int, s.dims)
		} else if fv.Dimensions() != s.dims {
			return fmt.Errorf("document %s: %w: %d != %d", doc.ID, core.ErrDimensionMismatch, fv.Dimensions(), s.dims)
		}
		e := entry{docID: id, id: doc.ID, raw: fv.Values}
		if s.hashField != "" {
			if b, ok := doc.Field(s.hashField); ok {
				if e.codes, err = lsh.DecodeCodes(b); err != nil {
					return fmt.Errorf("document %s: %w", doc.ID, err)
				}
			}
		}
		for d, v := range fv.Values {
			if v != 0 {
				s.df[d]++
			}
		}
		s.byDoc[id] = len(s.entries)
		s.entries = append(s.entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", field, err)
	}

	if s.weighting.InverseDocumentFrequency {
		s.idf = idfTable(s.df, len(s.entries))
	}
	for i := range s.entries {
		s.entries[i].weighted = s.weighting.apply(s.entries[i].raw, s.idf)
	}
	log.Info().Str("field", field).Int("documents", len(s.entries)).Int("skipped", skipped).
		Msgf("Search cache loaded with %d vectors", len(s.entries))
	return s, nil
}

// Len returns the number of cached vectors.
func (s *Searcher) Len() int { return len(s.entries) }

// Dimensions returns the dimensionality of the cached vectors, 0 when empty.
func (s *Searcher) Dimensions() int { return s.dims }

// Field returns the searched field name.
func (s *Searcher) Field() string { return s.field }

// Kind returns the searched feature kind: the qualified kind of the cached
// vectors once any are loaded.
func (s *Searcher) Kind() core.Kind { return s.kind }

// DocumentFrequency returns how many cached vectors have a non-zero component d,
// 0 when d is out of range.
func (s *Searcher) DocumentFrequency(d int) int {
	if d < 0 || d >= len(s.df) {
		return 0
	}
	return s.df[d]
}

func (s *Searcher) check(query core.FeatureVector, maxHits int) error {
	if maxHits <= 0 {
		return ErrInvalidMaxHits
	}
	if (len(s.entries) > 0 && query.Kind != s.kind) || !s.kind.Accepts(query.Kind) {
		return fmt.Errorf("%w: query is %s, field %s holds %s", core.ErrKindMismatch, query.Kind, s.field, s.kind)
	}
	if len(s.entries) > 0 && query.Dimensions() != s.dims {
		return fmt.Errorf("%w: query has %d dimensions, field %s %d", core.ErrDimensionMismatch, query.Dimensions(), s.field, s.dims)
	}
	return nil
}

// Search returns the maxHits cached documents closest to query.
func (s *Searcher) Search(ctx context.Context, query core.FeatureVector, maxHits int) ([]Result, error) {
	if err := s.check(query, maxHits); err != nil {
		return nil, err
	}
	defer s.observe(time.Now(), "scan")
	if len(s.entries) == 0 {
		return []Result{}, nil
	}

	key := ""
	if s.results != nil {
		key = string(query.Encode()) + "#" + strconv.Itoa(maxHits)
		if cached, ok := s.results.Get(key); ok {
			s.metrics.CacheHits.Inc()
			return append([]Result(nil), cached.([]Result)...), nil
		}
	}

	results, err := s.scan(ctx, s.weighting.apply(query.Values, s.idf), maxHits, nil)
	if err != nil {
		return nil, err
	}
	if s.results != nil {
		s.results.SetDefault(key, append([]Result(nil), results...))
	}
	return results, nil
}

// SearchDocument queries with the searched field of doc.
func (s *Searcher) SearchDocument(ctx context.Context, doc store.Document, maxHits int) ([]Result, error) {
	raw, ok := doc.Field(s.field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, s.field)
	}
	fv, err := core.DecodeFeature(raw)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, fv, maxHits)
}

// SearchByID queries with the cached vector of an indexed document.
func (s *Searcher) SearchByID(ctx context.Context, docID uint32, maxHits int) ([]Result, error) {
	i, ok := s.byDoc[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotCached, docID)
	}
	return s.Search(ctx, core.FeatureVector{Kind: s.kind, Values: s.entries[i].raw}, maxHits)
}

// Vector returns the cached, unweighted vector of docID.
func (s *Searcher) Vector(docID uint32) (core.FeatureVector, bool) {
	i, ok := s.byDoc[docID]
	if !ok {
		return core.FeatureVector{}, false
	}
	return core.NewFeatureVector(s.kind, s.entries[i].raw), true
}

func (s *Searcher) observe(start time.Time, strategy string) {
	s.metrics.Queries.WithLabelValues(strategy).Inc()
	s.metrics.Latency.Observe(time.Since(start).Seconds())
}

// scan ranks the cached entries, or only those listed in subset when non-nil,
// against the weighted query. Each worker owns a contiguous range.
func (s *Searcher) scan(ctx context.Context, query []float32, maxHits int, subset []int) ([]Result, error) {
	n := len(s.entries)
	if subset != nil {
		n = len(subset)
	}
	workers := min(s.workers, max(n, 1))
	chunk := (n + workers - 1) / workers
	sets := make([]*ResultSet, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		set := NewResultSet(maxHits)
		sets[w] = set
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)&1023 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				idx := i
				if subset != nil {
					idx = subset[i]
				}
				e := &s.entries[idx]
				set.Offer(Result{Distance: s.distance(query, e.weighted), ID: e.id, DocID: e.docID})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := NewResultSet(maxHits)
	for _, set := range sets {
		final.Merge(set)
	}
	return final.Results(), nil
}
