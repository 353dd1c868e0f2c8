package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/patrikhermansson/cbir/aggregate"
	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/extract"
	"github.com/patrikhermansson/cbir/filter"
	"github.com/patrikhermansson/cbir/kmeans"
	"github.com/patrikhermansson/cbir/lsh"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

type searchFlags struct {
	index, field, kind   string
	hits                 int
	image, extractor     string
	doc                  int64
	codebook, mode, norm string
	bank, hashField      string
	minMatches           int
	tf, idf, normalize   bool
	rerank, rerankKind   string
	lsa                  int
	timeout              time.Duration
}

func runSearch(ctx context.Context, args []string, out io.Writer) error {
	var f searchFlags
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.StringVar(&f.index, "index", "", "index file")
	fs.StringVar(&f.field, "field", "", "feature field to search")
	fs.StringVar(&f.kind, "kind", string(core.KindGeneric), "feature kind of the field")
	fs.IntVar(&f.hits, "hits", 10, "maximum number of results")
	fs.StringVar(&f.image, "query", "", "query image")
	fs.StringVar(&f.extractor, "extractor", "", "extractor for the query image")
	fs.Int64Var(&f.doc, "doc", -1, "query with this indexed document instead of an image")
	fs.StringVar(&f.codebook, "codebook", "", "codebook for a local extractor")
	fs.StringVar(&f.mode, "mode", "bovw", "aggregation mode for a local extractor")
	fs.StringVar(&f.norm, "norm", "none", "BOVW normalization for a local extractor")
	fs.StringVar(&f.bank, "hash", "", "hash bank narrowing the scan")
	fs.StringVar(&f.hashField, "hash-field", "", "stored hash codes, defaults to <field>_hash")
	fs.IntVar(&f.minMatches, "min-matches", 1, "bundle codes a candidate must share with the query")
	fs.BoolVar(&f.tf, "tf", false, "log term frequency weighting")
	fs.BoolVar(&f.idf, "idf", false, "inverse document frequency weighting")
	fs.BoolVar(&f.normalize, "normalize", false, "L2-normalize weighted vectors")
	fs.StringVar(&f.rerank, "rerank", "", "rerank results on this field")
	fs.StringVar(&f.rerankKind, "rerank-kind", "", "kind of the rerank field, defaults to -kind")
	fs.IntVar(&f.lsa, "lsa", -1, "LSA rerank keeping this many dimensions, 0 for a tenth of the rank")
	fs.DurationVar(&f.timeout, "timeout", 0, "query timeout")
	if err := parse(fs, args, "index", "field"); err != nil {
		return err
	}
	if (f.image == "") == (f.doc < 0) {
		return fmt.Errorf("%w: exactly one of -query and -doc is required", ErrUsage)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	st, err := store.Open(ctx, f.index, store.Options{LockTimeout: time.Second, ReadOnly: true})
	if err != nil {
		return err
	}
	defer st.Close()

	kind := core.Kind(f.kind)
	query, err := f.queryDocument(st)
	if err != nil {
		return err
	}

	opts := []search.Option{search.WithWeighting(search.Weighting{
		TermFrequency: f.tf, InverseDocumentFrequency: f.idf, Normalize: f.normalize,
	})}
	if f.bank != "" {
		if f.hashField == "" {
			f.hashField = f.field + "_hash"
		}
		opts = append(opts, search.WithHashField(f.hashField))
	}
	s, err := search.New(st, f.field, kind, opts...)
	if err != nil {
		return err
	}

	var results []search.Result
	if f.bank != "" {
		hasher, err := lsh.LoadHasher(f.bank)
		if err != nil {
			return err
		}
		idx, err := search.NewHashIndex(s, hasher, f.minMatches)
		if err != nil {
			return err
		}
		raw, ok := query.Field(f.field)
		if !ok {
			return fmt.Errorf("%w: %s", search.ErrMissingField, f.field)
		}
		fv, err := core.DecodeFeature(raw)
		if err != nil {
			return err
		}
		results, err = idx.Search(ctx, fv, f.hits)
		if err != nil {
			return err
		}
	} else if results, err = s.SearchDocument(ctx, query, f.hits); err != nil {
		return err
	}

	var chain filter.Chain
	if f.rerank != "" {
		rk := kind
		if f.rerankKind != "" {
			rk = core.Kind(f.rerankKind)
		}
		r, err := filter.NewRerank(st, f.rerank, rk)
		if err != nil {
			return err
		}
		chain = append(chain, r)
	}
	if f.lsa >= 0 {
		l, err := filter.NewLSA(st, f.field, kind, f.lsa)
		if err != nil {
			return err
		}
		chain = append(chain, l)
	}
	if len(chain) > 0 {
		if results, err = chain.Filter(ctx, results, query); err != nil {
			return err
		}
	}

	for i, r := range results {
		fmt.Fprintf(out, "%3d  %10.4f  %s\n", i+1, r.Distance, r.ID)
	}
	return nil
}

// queryDocument loads the stored query document or extracts the query image.
func (f *searchFlags) queryDocument(st *store.Store) (store.Document, error) {
	if f.doc >= 0 {
		return st.Document(uint32(f.doc))
	}
	if f.extractor == "" {
		return store.Document{}, fmt.Errorf("%w: -query needs -extractor", ErrUsage)
	}
	e, err := extract.Lookup(f.extractor)
	if err != nil {
		return store.Document{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	img, err := extract.Decode(f.image)
	if err != nil {
		return store.Document{}, err
	}

	var fv core.FeatureVector
	switch x := e.(type) {
	case extract.Local:
		if f.codebook == "" {
			return store.Document{}, fmt.Errorf("%w: local extractor %s needs -codebook", ErrUsage, f.extractor)
		}
		agg, err := f.aggregator()
		if err != nil {
			return store.Document{}, err
		}
		descriptors, err := x.Extract(img)
		if err != nil {
			return store.Document{}, err
		}
		av, err := agg.Aggregate(descriptors)
		if err != nil {
			return store.Document{}, err
		}
		fv = av.Feature()
	case extract.Global:
		if fv, err = x.Extract(img); err != nil {
			return store.Document{}, err
		}
	}
	return store.Document{ID: f.image, Fields: map[string][]byte{f.field: fv.Encode()}}, nil
}

func (f *searchFlags) aggregator() (*aggregate.Aggregator, error) {
	mode, err := aggregate.ParseMode(f.mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	norm, err := aggregate.ParseNormalization(f.norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	cb, err := kmeans.LoadCodebook(f.codebook)
	if err != nil {
		return nil, err
	}
	return aggregate.New(cb, mode, aggregate.WithNormalization(norm))
}
