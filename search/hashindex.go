package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/lsh"
)

// HashIndex narrows a Searcher's scan to documents sharing hash codes with the query.
// Candidates are always ranked by exact distance.
type HashIndex struct {
	searcher   *Searcher
	hasher     lsh.Hasher
	minMatches int
	buckets    map[string][]int
}

// NewHashIndex buckets every cached vector by its codes. Codes loaded through
// WithHashField are used when present, otherwise they are computed with hasher.
// A document becomes a candidate when at least minMatches of its bundle codes
// equal the query's.
func NewHashIndex(s *Searcher, hasher lsh.Hasher, minMatches int) (*HashIndex, error) {
	if hasher == nil {
		return nil, lsh.ErrNotInitialized
	}
	if minMatches < 1 {
		minMatches = 1
	}
	if minMatches > hasher.Bundles() {
		return nil, fmt.Errorf("min matches %d exceeds %d bundles", minMatches, hasher.Bundles())
	}
	h := &HashIndex{searcher: s, hasher: hasher, minMatches: minMatches, buckets: map[string][]int{}}
	computed := 0
	for i := range s.entries {
		codes := s.entries[i].codes
		if len(codes) != hasher.Bundles() {
			var err error
			if codes, err = hasher.Generate(s.entries[i].raw); err != nil {
				return nil, fmt.Errorf("hash document %s: %w", s.entries[i].id, err)
			}
			computed++
		}
		for b, code := range codes {
			key := lsh.CodeKey(b, code)
			h.buckets[key] = append(h.buckets[key], i)
		}
	}
	log.Debug().Int("buckets", len(h.buckets)).Int("computed", computed).Msg("Hash index built")
	return h, nil
}

// Candidates returns the cache positions sharing at least minMatches codes, in cache order.
func (h *HashIndex) Candidates(query []float32) ([]int, error) {
	codes, err := h.hasher.Generate(query)
	if err != nil {
		return nil, err
	}
	matches := map[int]int{}
	for b, code := range codes {
		for _, i := range h.buckets[lsh.CodeKey(b, code)] {
			matches[i]++
		}
	}
	var out []int
	for i, m := range matches {
		if m >= h.minMatches {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Search ranks the hash candidates by exact distance. With fewer than maxHits
// candidates it falls back to a full scan, so the result never holds fewer hits
// than a plain Search would.
func (h *HashIndex) Search(ctx context.Context, query core.FeatureVector, maxHits int) ([]Result, error) {
	s := h.searcher
	if err := s.check(query, maxHits); err != nil {
		return nil, err
	}
	candidates, err := h.Candidates(query.Values)
	if err != nil {
		return nil, err
	}
	if len(candidates) < maxHits && len(candidates) < len(s.entries) {
		log.Debug().Int("candidates", len(candidates)).Int("maxHits", maxHits).Msg("Too few hash candidates, scanning all")
		return s.Search(ctx, query, maxHits)
	}
	defer s.observe(time.Now(), "hash")
	return s.scan(ctx, s.weighting.apply(query.Values, s.idf), maxHits, candidates)
}
