package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/cbir/config"
	"github.com/patrikhermansson/cbir/metrics"
	"github.com/patrikhermansson/cbir/pipeline"
	"github.com/patrikhermansson/cbir/store"
)

func runIndex(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	path := fs.String("config", "", "YAML job description")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while indexing")
	if err := parse(fs, args, "config"); err != nil {
		return err
	}

	job, err := config.Load(*path)
	if err != nil {
		return err
	}
	sources, err := pipeline.Sources(job.Input)
	if err != nil {
		return err
	}
	features, err := job.Build()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, job.Index, store.DefaultOptions)
	if err != nil {
		return err
	}
	defer st.Close()
	w, err := st.Writer()
	if err != nil {
		return err
	}
	defer w.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)
	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	ix, err := pipeline.New(w, features,
		pipeline.WithConfig(job.Pipeline()),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(log.With().Str("job", *path).Logger()),
	)
	if err != nil {
		return err
	}
	report, err := ix.Run(ctx, sources)
	fmt.Fprintf(out, "indexed %d of %d inputs (%d skipped) into %s\n",
		report.Indexed, report.Total, report.Skipped, job.Index)
	return err
}
