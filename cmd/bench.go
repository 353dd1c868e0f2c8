package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/dataset"
	"github.com/patrikhermansson/cbir/lsh"
)

func runBench(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	dir := fs.String("data", "", "directory with train.csv, test.csv and neighbors.csv")
	k := fs.Int("k", 10, "neighbors per query")
	bundles := fs.Int("bundles", 16, "Gaussian hash bundles")
	width := fs.Float64("width", 4, "bin width")
	minMatches := fs.Int("min-matches", 2, "bundle codes a candidate must share with the query")
	seed := fs.Int64("seed", 0, "random seed, 0 to use CBIR_SEED or the clock")
	if err := parse(fs, args, "data"); err != nil {
		return err
	}
	if *seed == 0 {
		*seed = core.GetSeed()
	}

	b, err := dataset.LoadBenchmark(*dir)
	if err != nil {
		return err
	}
	if len(b.Train) == 0 {
		return fmt.Errorf("%s: empty training set", *dir)
	}
	bank, err := lsh.NewBank(lsh.GaussianScheme,
		lsh.Params{Dimensions: len(b.Train[0]), Bundles: *bundles, BinWidth: *width},
		rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	hasher, err := lsh.NewHasher(bank)
	if err != nil {
		return err
	}
	r, err := dataset.Run(ctx, b, hasher, *minMatches, *k, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d queries, k=%d\n", r.Queries, *k)
	fmt.Fprintf(out, "  scan: recall %.3f in %s\n", r.ScanRecall, r.ScanTime)
	fmt.Fprintf(out, "  hash: recall %.3f in %s\n", r.HashRecall, r.HashTime)
	return nil
}
