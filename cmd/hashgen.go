package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/lsh"
)

func runHashgen(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hashgen", flag.ContinueOnError)
	schemeName := fs.String("scheme", "gaussian", "gaussian or bits")
	dims := fs.Int("dims", 0, "input dimensionality")
	bits := fs.Int("bits", 12, "bits per bundle (bit sampling)")
	bundles := fs.Int("bundles", 16, "hash codes per vector")
	width := fs.Float64("width", 4, "bin width")
	output := fs.String("out", "", "bank file to write")
	seed := fs.Int64("seed", 0, "random seed, 0 to use CBIR_SEED or the clock")
	if err := parse(fs, args, "out"); err != nil {
		return err
	}
	scheme, err := lsh.ParseScheme(*schemeName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *dims <= 0 {
		return fmt.Errorf("%w: -dims must be positive", ErrUsage)
	}
	if *seed == 0 {
		*seed = core.GetSeed()
	}
	bank, err := lsh.GenerateHashFunctions(*output, scheme,
		lsh.Params{Bits: *bits, Dimensions: *dims, Bundles: *bundles, BinWidth: *width}, *seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s bank written to %s: %d bundles over %d dimensions\n",
		bank.Scheme, *output, bank.Params.Bundles, bank.Params.Dimensions)
	return nil
}
