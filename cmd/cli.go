package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrUsage marks command line mistakes; Execute prints usage for them.
var ErrUsage = errors.New("usage error")

type command struct {
	name string
	help string
	run  func(ctx context.Context, args []string, out io.Writer) error
}

var commands = []command{
	{"index", "run an indexing job described by a YAML file", runIndex},
	{"train", "train a codebook from CSV descriptors", runTrain},
	{"hashgen", "generate a hash function bank", runHashgen},
	{"search", "query an index with an image or a stored document", runSearch},
	{"bench", "compare hash-narrowed and exact search on a CSV dataset", runBench},
}

// Execute runs the subcommand named by args[0] and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		usage(errOut)
		return 2
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if err := c.run(ctx, args[1:], out); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(errOut, "cbir %s: %v\n", c.name, err)
			if errors.Is(err, ErrUsage) {
				return 2
			}
			return 1
		}
		return 0
	}
	fmt.Fprintf(errOut, "cbir: unknown command %q\n", args[0])
	usage(errOut)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cbir <command> [flags]")
	names := make([]string, 0, len(commands))
	help := map[string]string{}
	for _, c := range commands {
		names = append(names, c.name)
		help[c.name] = c.help
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-8s %s\n", n, help[n])
	}
}

// parse parses args into fs, turning flag errors into ErrUsage and checking required flags.
func parse(fs *flag.FlagSet, args []string, required ...string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	var missing []string
	for _, name := range required {
		if f := fs.Lookup(name); f != nil && f.Value.String() == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrUsage, strings.Join(missing, ", "))
	}
	return nil
}
