package search

import "sort"

// Result is one hit of a query.
type Result struct {
	Distance float64
	ID       string
	DocID    uint32
}

// Less orders results by distance, then by external id, then by internal id.
func Less(a, b Result) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.DocID < b.DocID
}

// SortResults sorts results in place by Less.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool { return Less(results[i], results[j]) })
}

// ResultSet keeps the best maxHits results in ascending order.
// It is not safe for concurrent use; parallel scans keep one set per worker and Merge them.
type ResultSet struct {
	max     int
	results []Result
}

// NewResultSet returns an empty set holding at most maxHits results.
func NewResultSet(maxHits int) *ResultSet {
	if maxHits < 0 {
		maxHits = 0
	}
	return &ResultSet{max: maxHits, results: make([]Result, 0, min(maxHits, 64))}
}

// Len returns the number of results held.
func (s *ResultSet) Len() int { return len(s.results) }

// Full reports whether the set holds maxHits results.
func (s *ResultSet) Full() bool { return len(s.results) >= s.max }

// Worst returns the last result, if any.
func (s *ResultSet) Worst() (Result, bool) {
	if len(s.results) == 0 {
		return Result{}, false
	}
	return s.results[len(s.results)-1], true
}

// Offer inserts r if the set has room or r orders strictly before the current
// worst, which is then evicted. It reports whether r was kept.
func (s *ResultSet) Offer(r Result) bool {
	if s.max == 0 {
		return false
	}
	if s.Full() && !Less(r, s.results[len(s.results)-1]) {
		return false
	}
	i := sort.Search(len(s.results), func(i int) bool { return Less(r, s.results[i]) })
	if s.Full() {
		s.results = s.results[:len(s.results)-1]
	}
	s.results = append(s.results, Result{})
	copy(s.results[i+1:], s.results[i:])
	s.results[i] = r
	return true
}

// Merge offers every result of other.
func (s *ResultSet) Merge(other *ResultSet) {
	for _, r := range other.results {
		if !s.Offer(r) {
			// other is sorted, nothing after r can enter either
			break
		}
	}
}

// Results returns an ordered copy of the held results.
func (s *ResultSet) Results() []Result {
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}
