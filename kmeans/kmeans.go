// Package kmeans builds visual vocabularies by clustering descriptors with k-means.
package kmeans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/patrikhermansson/cbir/core"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoData is returned when clustering is attempted on an empty training set.
	ErrNoData = errors.New("no training data")

	// ErrNotInitialized is returned when Step is called before Init.
	ErrNotInitialized = errors.New("k-means not initialized")
)

// minStressThreshold is the lower bound of the convergence threshold.
const minStressThreshold = 20

// Option configures a KMeans run.
type Option func(*KMeans)

// WithDistance sets the distance used for assignment and stress. Defaults to Euclidean.
func WithDistance(distance core.DistanceFunc) Option {
	return func(km *KMeans) { km.distance = distance }
}

// WithSeed fixes the random source used for centroid initialization.
func WithSeed(seed int64) Option {
	return func(km *KMeans) { km.rnd = rand.New(rand.NewSource(seed)) }
}

// WithWorkers sets the number of goroutines used by StepParallel.
func WithWorkers(workers int) Option {
	return func(km *KMeans) {
		if workers > 0 {
			km.workers = workers
		}
	}
}

// WithProgress renders a progress bar while Run iterates.
func WithProgress(enabled bool) Option {
	return func(km *KMeans) { km.progress = enabled }
}

// WithParallel makes Run use StepParallel instead of Step.
func WithParallel(enabled bool) Option {
	return func(km *KMeans) { km.parallel = enabled }
}

// KMeans clusters a fixed training set into k clusters.
type KMeans struct {
	features    [][]float32
	k           int
	dimension   int
	distance    core.DistanceFunc
	rnd         *rand.Rand
	workers     int
	progress    bool
	parallel    bool
	clusters    []Cluster
	initialized bool
}

// Result summarizes a Run.
type Result struct {
	Steps     int     // steps executed
	Stress    float64 // stress after the last accepted step
	Converged bool    // stress dropped below the threshold
	Stable    bool    // a step left the stress unchanged
	Diverged  bool    // a step increased the stress and the run stopped
}

// New creates a k-means instance over features. The training set is not copied and
// must not be modified while the instance is in use.
func New(features [][]float32, k int, opts ...Option) (*KMeans, error) {
	if len(features) == 0 {
		return nil, ErrNoData
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	dim := len(features[0])
	for i, f := range features {
		if len(f) != dim {
			return nil, fmt.Errorf("feature %d: %w: %d vs %d", i, core.ErrDimensionMismatch, len(f), dim)
		}
		if core.HasNaN(f) {
			return nil, fmt.Errorf("feature %d contains NaN or Inf", i)
		}
	}
	km := &KMeans{
		features:  features,
		k:         k,
		dimension: dim,
		distance:  core.Euclidean,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(km)
	}
	if km.rnd == nil {
		km.rnd = rand.New(rand.NewSource(core.GetSeed()))
	}
	return km, nil
}

// Init picks k starting centroids uniformly at random without replacement.
// With fewer training vectors than clusters the draw wraps around, so duplicate centroids occur.
func (km *KMeans) Init() {
	n := len(km.features)
	perm := km.rnd.Perm(n)
	km.clusters = make([]Cluster, km.k)
	for i := 0; i < km.k; i++ {
		centroid := make([]float32, km.dimension)
		copy(centroid, km.features[perm[i%n]])
		km.clusters[i] = Cluster{Centroid: centroid}
	}
	if n < 2*km.k {
		log.Warn().Msgf("k-means: only %d training vectors for %d clusters", n, km.k)
	}
	km.initialized = true
}

// Threshold returns the stress below which a run is considered converged.
func (km *KMeans) Threshold() float64 {
	return math.Max(minStressThreshold, float64(len(km.features))/1000)
}

// Step assigns every training vector to its nearest centroid, recomputes centroids
// and returns the resulting stress.
func (km *KMeans) Step() (float64, error) {
	if !km.initialized {
		return 0, ErrNotInitialized
	}
	centroids := km.centroids()
	for i := range km.clusters {
		km.clusters[i].Members = km.clusters[i].Members[:0]
	}
	for i, f := range km.features {
		best, _ := core.Nearest(f, centroids, km.distance)
		km.clusters[best].Members = append(km.clusters[best].Members, i)
	}
	return km.recompute(), nil
}

// StepParallel is Step with the assignment partitioned over disjoint index ranges.
// Each worker fills a private membership map; the caller's goroutine merges them
// after all workers finished, so the outcome equals Step.
func (km *KMeans) StepParallel(ctx context.Context) (float64, error) {
	if !km.initialized {
		return 0, ErrNotInitialized
	}
	centroids := km.centroids()
	n := len(km.features)
	workers := km.workers
	if workers > n {
		workers = n
	}
	chunkSize := (n + workers - 1) / workers
	partials := make([]map[int][]int, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		g.Go(func() error {
			local := make(map[int][]int)
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				best, _ := core.Nearest(km.features[i], centroids, km.distance)
				local[best] = append(local[best], i)
			}
			partials[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i := range km.clusters {
		km.clusters[i].Members = km.clusters[i].Members[:0]
	}
	// Ranges are merged in order so members stay ascending, as in Step.
	for _, local := range partials {
		for c, members := range local {
			km.clusters[c].Members = append(km.clusters[c].Members, members...)
		}
	}
	return km.recompute(), nil
}

// recompute moves every non-empty cluster to the mean of its members and returns the stress.
func (km *KMeans) recompute() float64 {
	var stress float64
	for c := range km.clusters {
		cl := &km.clusters[c]
		if len(cl.Members) == 0 {
			continue
		}
		sum := make([]float64, km.dimension)
		for _, idx := range cl.Members {
			for j, v := range km.features[idx] {
				sum[j] += float64(v)
			}
		}
		for j := range sum {
			cl.Centroid[j] = float32(sum[j] / float64(len(cl.Members)))
		}
		for _, idx := range cl.Members {
			stress += km.distance(km.features[idx], cl.Centroid)
		}
	}
	return stress
}

func (km *KMeans) centroids() [][]float32 {
	out := make([][]float32, len(km.clusters))
	for i := range km.clusters {
		out[i] = km.clusters[i].Centroid
	}
	return out
}

// Run initializes if needed and iterates until the stress drops below Threshold,
// a step leaves it unchanged or raises it, or maxSteps is reached (maxSteps <= 0 means no limit).
func (km *KMeans) Run(ctx context.Context, maxSteps int) (Result, error) {
	if !km.initialized {
		km.Init()
	}
	var bar *progressbar.ProgressBar
	if km.progress {
		bar = progressbar.NewOptions(maxSteps,
			progressbar.OptionSetDescription("k-means"),
			progressbar.OptionOnCompletion(func() { fmt.Print("\n") }),
		)
	}

	res := Result{Stress: math.Inf(1)}
	threshold := km.Threshold()
	for maxSteps <= 0 || res.Steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var stress float64
		var err error
		if km.parallel {
			stress, err = km.StepParallel(ctx)
		} else {
			stress, err = km.Step()
		}
		if err != nil {
			return res, err
		}
		res.Steps++
		if bar != nil {
			_ = bar.Add(1)
		}
		log.Debug().Int("step", res.Steps).Float64("stress", stress).Msg("k-means step")

		if stress > res.Stress {
			log.Warn().Msgf("k-means: stress increased from %.4f to %.4f at step %d, stopping",
				res.Stress, stress, res.Steps)
			res.Diverged = true
			res.Stress = stress
			break
		}
		stable := stress == res.Stress
		res.Stress = stress
		if stress < threshold {
			res.Converged = true
			break
		}
		if stable {
			res.Stable = true
			break
		}
	}
	log.Info().Msgf("k-means finished after %d steps with stress %.4f (threshold %.1f)",
		res.Steps, res.Stress, threshold)
	return res, nil
}

// Clusters returns the current clusters. The slice is owned by the instance.
func (km *KMeans) Clusters() []Cluster { return km.clusters }

// Codebook snapshots the current centroids into a read-only codebook.
// Membership is copied so callers can inspect the final assignment.
func (km *KMeans) Codebook() *Codebook {
	cb := NewCodebook(km.centroids())
	for i := range km.clusters {
		cb.Clusters[i].Members = append([]int(nil), km.clusters[i].Members...)
	}
	return cb
}
