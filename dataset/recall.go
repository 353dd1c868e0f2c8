package dataset

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/lsh"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

// RecallAtK is the fraction of the first k ground-truth rows found among the
// first k results. Results are matched on DocID, which equals the train row.
func RecallAtK(results []search.Result, groundTruth []int, k int) float64 {
	if k <= 0 || len(groundTruth) == 0 {
		return 0
	}
	predicted := make(map[int]struct{}, k)
	for i := 0; i < k && i < len(results); i++ {
		predicted[int(results[i].DocID)] = struct{}{}
	}
	truth := groundTruth
	if len(truth) > k {
		truth = truth[:k]
	}
	correct := 0
	for _, id := range truth {
		if _, ok := predicted[id]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// FormatResults renders up to maxResults results on one line.
func FormatResults(results []search.Result, maxResults int) string {
	s := ""
	for i := 0; i < maxResults && i < len(results); i++ {
		s += fmt.Sprintf("id=%d (dist=%.3f) ", results[i].DocID, results[i].Distance)
	}
	return s
}

// vectors serves training rows as documents, for building a searcher without a store.
type vectors [][]float32

func (v vectors) Scan(fn func(id uint32, doc store.Document) error) error {
	for i, row := range v {
		fv := core.NewFeatureVector(core.KindGeneric, row)
		doc := store.Document{ID: strconv.Itoa(i), Fields: map[string][]byte{"v": fv.Encode()}}
		if err := fn(uint32(i), doc); err != nil {
			return err
		}
	}
	return nil
}

// Report compares hash-narrowed search with the exact scan.
type Report struct {
	Queries    int
	ScanRecall float64
	HashRecall float64
	ScanTime   time.Duration
	HashTime   time.Duration
}

// Run indexes b.Train in memory and answers every test query twice, by full
// scan and through a HashIndex over hasher.
func Run(ctx context.Context, b *Benchmark, hasher lsh.Hasher, minMatches, k int, progress bool) (Report, error) {
	s, err := search.New(vectors(b.Train), "v", core.KindGeneric)
	if err != nil {
		return Report{}, err
	}
	idx, err := search.NewHashIndex(s, hasher, minMatches)
	if err != nil {
		return Report{}, err
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(len(b.Test), progressbar.OptionOnCompletion(func() { fmt.Print("\n") }))
	}
	r := Report{Queries: len(b.Test)}
	for i, q := range b.Test {
		query := core.NewFeatureVector(core.KindGeneric, q)

		start := time.Now()
		exact, err := s.Search(ctx, query, k)
		if err != nil {
			return r, err
		}
		r.ScanTime += time.Since(start)

		start = time.Now()
		approx, err := idx.Search(ctx, query, k)
		if err != nil {
			return r, err
		}
		r.HashTime += time.Since(start)

		r.ScanRecall += RecallAtK(exact, b.Neighbors[i], k)
		r.HashRecall += RecallAtK(approx, b.Neighbors[i], k)
		log.Debug().Msgf("Query #%d: %s", i+1, FormatResults(approx, 5))
		if bar != nil {
			bar.Add(1)
		}
	}
	if r.Queries > 0 {
		r.ScanRecall /= float64(r.Queries)
		r.HashRecall /= float64(r.Queries)
	}
	return r, nil
}
