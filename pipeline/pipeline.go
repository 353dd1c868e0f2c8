// Package pipeline indexes images in parallel.
//
// One producer decodes the inputs into a bounded buffer, a pool of consumers
// extracts the configured features, and a single committer goroutine owns the
// store writer. The buffer blocks the producer when full.
package pipeline

//go:generate mockgen -destination=mock_extract_test.go -package=pipeline_test github.com/patrikhermansson/cbir/extract Global,Local
//go:generate mockgen -destination=mock_writer_test.go -package=pipeline_test github.com/patrikhermansson/cbir/pipeline DocumentWriter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/patrikhermansson/cbir/extract"
	"github.com/patrikhermansson/cbir/metrics"
	"github.com/patrikhermansson/cbir/store"
)

// DocumentWriter is the store side of the pipeline. *store.Writer implements it.
type DocumentWriter interface {
	Append(doc store.Document) (uint32, error)
	Commit() error
}

// Decoder loads the image behind a source.
type Decoder func(source string) (image.Image, error)

// WorkItem is a decoded input travelling from the producer to a consumer.
type WorkItem struct {
	Source string
	Image  image.Image
}

// Config sizes the pipeline.
type Config struct {
	Workers    int
	BufferSize int
	// SoftLimit is the buffer length above which the producer reports pressure.
	SoftLimit int
	Progress  bool
}

// DefaultConfig uses one consumer per CPU and a buffer twice as deep.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{Workers: n, BufferSize: 2 * n, SoftLimit: n}
}

// Report summarizes a run. Total minus Indexed minus Skipped is the number of
// inputs left untouched by a cancelled run.
type Report struct {
	Total   int
	Indexed int
	Skipped int
}

// Indexer runs the extraction pipeline into one document writer.
type Indexer struct {
	writer   DocumentWriter
	features []Feature
	decode   Decoder
	cfg      Config
	logger   zerolog.Logger
	metrics  *metrics.Pipeline
}

type Option func(*Indexer)

func WithConfig(cfg Config) Option { return func(ix *Indexer) { ix.cfg = cfg } }

func WithDecoder(d Decoder) Option { return func(ix *Indexer) { ix.decode = d } }

func WithLogger(l zerolog.Logger) Option { return func(ix *Indexer) { ix.logger = l } }

func WithMetrics(m *metrics.Pipeline) Option { return func(ix *Indexer) { ix.metrics = m } }

// New validates the feature configuration and builds an indexer.
func New(writer DocumentWriter, features []Feature, opts ...Option) (*Indexer, error) {
	if writer == nil {
		return nil, errors.New("pipeline: no document writer")
	}
	if len(features) == 0 {
		return nil, errors.New("pipeline: no features configured")
	}
	ix := &Indexer{
		writer:   writer,
		features: append([]Feature(nil), features...),
		decode:   func(source string) (image.Image, error) { return extract.Decode(source) },
		cfg:      DefaultConfig(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.metrics == nil {
		ix.metrics = metrics.NewPipeline(nil)
	}

	seen := map[string]bool{}
	for i := range ix.features {
		f := &ix.features[i]
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		for _, name := range []string{f.Field, f.HashField} {
			if name == "" {
				continue
			}
			if seen[name] {
				return nil, fmt.Errorf("pipeline: field %q configured twice", name)
			}
			seen[name] = true
		}
	}

	if ix.cfg.Workers < 1 {
		ix.cfg.Workers = 1
	}
	if ix.cfg.BufferSize < 1 {
		ix.cfg.BufferSize = 1
	}
	if ix.cfg.SoftLimit <= 0 || ix.cfg.SoftLimit > ix.cfg.BufferSize {
		ix.cfg.SoftLimit = ix.cfg.BufferSize
	}
	return ix, nil
}

type counters struct {
	indexed atomic.Int64
	skipped atomic.Int64
}

// Run indexes sources and commits the writer once all stages have ended.
//
// Inputs that fail to decode or extract are logged and skipped. A failing
// Append stops the run without committing. When ctx is cancelled, the documents
// appended so far are committed and ctx.Err() is returned.
func (ix *Indexer) Run(ctx context.Context, sources []string) (Report, error) {
	report := Report{Total: len(sources)}
	var c counters

	var bar *progressbar.ProgressBar
	if ix.cfg.Progress {
		bar = progressbar.NewOptions(len(sources),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionOnCompletion(func() { fmt.Print("\n") }),
		)
	}
	tick := func() {
		if bar != nil {
			bar.Add(1)
		}
	}

	ix.logger.Info().Int("sources", len(sources)).Int("workers", ix.cfg.Workers).
		Int("buffer", ix.cfg.BufferSize).Msg("Indexing started")
	start := time.Now()

	buffer := make(chan WorkItem, ix.cfg.BufferSize)
	docs := make(chan store.Document, ix.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(buffer)
		return ix.produce(gctx, sources, buffer, &c, tick)
	})

	var consumers sync.WaitGroup
	for w := 0; w < ix.cfg.Workers; w++ {
		consumers.Add(1)
		g.Go(func() error {
			defer consumers.Done()
			return ix.consume(gctx, buffer, docs, &c, tick)
		})
	}
	go func() {
		consumers.Wait()
		close(docs)
	}()

	var appendErr error
	g.Go(func() error {
		for doc := range docs {
			if _, err := ix.writer.Append(doc); err != nil {
				appendErr = fmt.Errorf("append %s: %w", doc.ID, err)
				return appendErr
			}
			c.indexed.Add(1)
			ix.metrics.Processed.Inc()
			tick()
		}
		return nil
	})

	err := g.Wait()
	report.Indexed = int(c.indexed.Load())
	report.Skipped = int(c.skipped.Load())

	if appendErr != nil {
		ix.logger.Error().Err(appendErr).Msg("Indexing aborted")
		return report, appendErr
	}
	if cerr := ix.writer.Commit(); cerr != nil {
		ix.logger.Error().Err(cerr).Msg("Commit failed")
		return report, fmt.Errorf("commit: %w", cerr)
	}
	ix.metrics.Committed.Add(float64(report.Indexed))

	if ctx.Err() != nil {
		ix.logger.Warn().Err(ctx.Err()).Int("indexed", report.Indexed).Msg("Indexing interrupted")
		return report, ctx.Err()
	}
	if err != nil {
		return report, err
	}
	ix.logger.Info().Int("indexed", report.Indexed).Int("skipped", report.Skipped).
		Dur("elapsed", time.Since(start)).Msg("Indexing finished")
	return report, nil
}

func (ix *Indexer) produce(ctx context.Context, sources []string, buffer chan<- WorkItem, c *counters, tick func()) error {
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := ix.decode(source)
		if err != nil {
			ix.logger.Warn().Err(err).Str("source", source).Msg("Skipping input")
			c.skipped.Add(1)
			ix.metrics.Skipped.WithLabelValues("decode").Inc()
			tick()
			continue
		}
		if len(buffer) >= ix.cfg.SoftLimit {
			ix.logger.Debug().Int("buffered", len(buffer)).Msg("Buffer above soft limit, producer waiting")
		}
		select {
		case buffer <- WorkItem{Source: source, Image: img}:
			ix.metrics.BufferDepth.Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (ix *Indexer) consume(ctx context.Context, buffer <-chan WorkItem, docs chan<- store.Document, c *counters, tick func()) error {
	for item := range buffer {
		ix.metrics.BufferDepth.Dec()
		doc, err := ix.document(item)
		if err != nil {
			ix.logger.Warn().Err(err).Str("source", item.Source).Msg("Skipping input")
			c.skipped.Add(1)
			ix.metrics.Skipped.WithLabelValues("extract").Inc()
			tick()
			continue
		}
		select {
		case docs <- doc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// document extracts every configured feature of item. Any failing feature
// rejects the whole item.
func (ix *Indexer) document(item WorkItem) (store.Document, error) {
	start := time.Now()
	defer ix.metrics.ObserveExtract(start)

	fields := map[string][]byte{store.IDField: []byte(item.Source)}
	for i := range ix.features {
		if err := ix.features[i].fill(item.Image, fields); err != nil {
			return store.Document{}, err
		}
	}
	return store.Document{ID: item.Source, Fields: fields}, nil
}
