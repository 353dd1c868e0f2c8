package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/dataset"
	"github.com/patrikhermansson/cbir/kmeans"
)

func runTrain(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	input := fs.String("input", "", "CSV file with one descriptor per row")
	header := fs.Bool("header", false, "skip the first CSV row")
	k := fs.Int("k", 50, "vocabulary size")
	steps := fs.Int("steps", 10, "maximum number of steps, 0 for no limit")
	output := fs.String("out", "", "codebook file to write")
	parallel := fs.Bool("parallel", false, "parallel assignment step")
	workers := fs.Int("workers", 0, "goroutines for -parallel, 0 for one per CPU")
	distance := fs.String("distance", "euclidean", "distance function")
	seed := fs.Int64("seed", 0, "random seed, 0 to use CBIR_SEED or the clock")
	progress := fs.Bool("progress", true, "show a progress bar")
	if err := parse(fs, args, "input", "out"); err != nil {
		return err
	}
	if core.FileExists(*output) {
		return fmt.Errorf("%s: %w", *output, core.ErrArtifactExists)
	}
	dist, err := core.DistanceByName(*distance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *seed == 0 {
		*seed = core.GetSeed()
	}

	vectors, err := dataset.ReadVectors(*input, *header)
	if err != nil {
		return err
	}
	// angle-based metrics cluster directions, not magnitudes
	if *distance == "cosine" || *distance == "angular" {
		core.NormalizeBatch(vectors)
	}
	km, err := kmeans.New(vectors, *k,
		kmeans.WithDistance(dist),
		kmeans.WithSeed(*seed),
		kmeans.WithParallel(*parallel),
		kmeans.WithWorkers(*workers),
		kmeans.WithProgress(*progress),
	)
	if err != nil {
		return err
	}
	res, err := km.Run(ctx, *steps)
	if err != nil {
		return err
	}
	cb := km.Codebook()
	if err := cb.Save(*output); err != nil {
		return err
	}
	fmt.Fprintf(out, "codebook %s: %d centroids of %d dimensions, %d steps, stress %.4f (converged=%t)\n",
		cb.ID, cb.Size(), cb.Dimensions(), res.Steps, res.Stress, res.Converged)
	return nil
}
