// Package metrics holds the Prometheus collectors of indexing runs and searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counts the work of indexing runs.
type Pipeline struct {
	Processed   prometheus.Counter
	Skipped     *prometheus.CounterVec
	Committed   prometheus.Counter
	BufferDepth prometheus.Gauge
	Extract     prometheus.Histogram
}

// NewPipeline creates the pipeline collectors and registers them on reg.
// A nil reg leaves them unregistered, which tests use.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbir_pipeline_items_processed_total",
			Help: "Work items that produced a document",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbir_pipeline_items_skipped_total",
			Help: "Work items dropped before reaching the store",
		}, []string{"stage"}),
		Committed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbir_pipeline_documents_committed_total",
			Help: "Documents made durable by a commit",
		}),
		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cbir_pipeline_buffer_depth",
			Help: "Decoded images waiting for a consumer",
		}),
		Extract: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cbir_pipeline_extract_duration_seconds",
			Help:    "Time spent extracting all features of one image",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Processed, m.Skipped, m.Committed, m.BufferDepth, m.Extract)
	}
	return m
}

// ObserveExtract records the extraction latency of one item started at start.
func (m *Pipeline) ObserveExtract(start time.Time) {
	m.Extract.Observe(time.Since(start).Seconds())
}

// Search counts queries served by a searcher.
type Search struct {
	Queries   *prometheus.CounterVec
	CacheHits prometheus.Counter
	Latency   prometheus.Histogram
}

// NewSearch creates the search collectors and registers them on reg when non-nil.
func NewSearch(reg prometheus.Registerer) *Search {
	m := &Search{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbir_search_queries_total",
			Help: "Queries answered, by strategy",
		}, []string{"strategy"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbir_search_cache_hits_total",
			Help: "Queries answered from the result cache",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cbir_search_duration_seconds",
			Help:    "Query latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Queries, m.CacheHits, m.Latency)
	}
	return m
}
