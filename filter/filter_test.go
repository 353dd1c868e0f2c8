package filter_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/filter"
	"github.com/patrikhermansson/cbir/search"
	"github.com/patrikhermansson/cbir/store"
)

type memDocs map[uint32]store.Document

func (m memDocs) Document(id uint32) (store.Document, error) {
	d, ok := m[id]
	if !ok {
		return store.Document{}, fmt.Errorf("document %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func withField(doc store.Document, field string, kind core.Kind, values ...float32) store.Document {
	if doc.Fields == nil {
		doc.Fields = map[string][]byte{}
	}
	doc.Fields[field] = core.NewFeatureVector(kind, values).Encode()
	return doc
}

func coarse(ids ...string) []search.Result {
	out := make([]search.Result, len(ids))
	for i, id := range ids {
		out[i] = search.Result{Distance: float64(i), ID: id, DocID: uint32(i)}
	}
	return out
}

func TestRerank(t *testing.T) {
	docs := memDocs{
		0: withField(store.Document{ID: "a"}, "exact", core.KindColorHistogram, 9, 0),
		1: withField(store.Document{ID: "b"}, "exact", core.KindColorHistogram, 1, 0),
		2: {ID: "c", Fields: map[string][]byte{"other": {1}}},
		3: withField(store.Document{ID: "d"}, "exact", core.KindColorHistogram, 3, 0),
	}
	r, err := filter.NewRerank(docs, "exact", core.KindColorHistogram)
	if err != nil {
		t.Fatal(err)
	}
	query := withField(store.Document{ID: "q"}, "exact", core.KindColorHistogram, 0, 0)
	results := coarse("a", "b", "c", "d", "gone")
	results[4].DocID = 99

	got, err := r.Filter(context.Background(), results, query)
	if err != nil {
		t.Fatal(err)
	}
	want := []search.Result{{Distance: 1, ID: "b", DocID: 1}, {Distance: 3, ID: "d", DocID: 3}, {Distance: 9, ID: "a", DocID: 0}}
	if len(got) != len(want) {
		t.Fatalf("got %+v; want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %+v; want %+v", got, want)
		}
	}
}

func TestRerankErrors(t *testing.T) {
	if _, err := filter.NewRerank(memDocs{}, "f", core.Kind("unregistered")); !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("NewRerank(unknown kind) error = %v", err)
	}
	r, _ := filter.NewRerank(memDocs{}, "f", core.KindGeneric)
	if _, err := r.Filter(context.Background(), coarse("a"), store.Document{ID: "q"}); !errors.Is(err, filter.ErrMissingQueryField) {
		t.Errorf("missing query field error = %v", err)
	}
	wrong := withField(store.Document{ID: "q"}, "f", core.KindVLAD, 1)
	if _, err := r.Filter(context.Background(), coarse("a"), wrong); !errors.Is(err, core.ErrKindMismatch) {
		t.Errorf("query kind mismatch error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	query := withField(store.Document{ID: "q"}, "f", core.KindGeneric, 1)
	if _, err := r.Filter(ctx, coarse("a"), query); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled filter error = %v", err)
	}
}

func TestRerankDropsForeignCodebook(t *testing.T) {
	a, b := core.KindBOVW.Qualify("aaaa"), core.KindBOVW.Qualify("bbbb")
	docs := memDocs{
		0: withField(store.Document{ID: "a"}, "f", a, 1, 0),
		1: withField(store.Document{ID: "b"}, "f", b, 1, 0),
		2: withField(store.Document{ID: "c"}, "f", a, 0, 1),
	}
	r, err := filter.NewRerank(docs, "f", core.KindBOVW)
	if err != nil {
		t.Fatal(err)
	}
	query := withField(store.Document{ID: "q"}, "f", a, 1, 0)
	got, err := r.Filter(context.Background(), coarse("a", "b", "c"), query)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("reranked = %+v; want a, c", got)
	}

	pinned, _ := filter.NewRerank(docs, "f", b)
	if _, err := pinned.Filter(context.Background(), coarse("a"), query); !errors.Is(err, core.ErrKindMismatch) {
		t.Errorf("query from another codebook error = %v; want ErrKindMismatch", err)
	}
}

func TestLSAFullRankMatchesL1(t *testing.T) {
	docs := memDocs{
		0: withField(store.Document{ID: "far"}, "f", core.KindGeneric, 10, 0, 0),
		1: withField(store.Document{ID: "near"}, "f", core.KindGeneric, 1, 1, 0),
		2: withField(store.Document{ID: "mid"}, "f", core.KindGeneric, 0, 4, 3),
	}
	lsa, err := filter.NewLSA(docs, "f", core.KindGeneric, 3)
	if err != nil {
		t.Fatal(err)
	}
	query := withField(store.Document{ID: "q"}, "f", core.KindGeneric, 1, 0, 0)
	got, err := lsa.Filter(context.Background(), coarse("far", "near", "mid"), query)
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []string{"near", "mid", "far"}
	wantDist := []float64{1, 8, 9}
	for i := range wantIDs {
		if got[i].ID != wantIDs[i] || math.Abs(got[i].Distance-wantDist[i]) > 1e-9 {
			t.Fatalf("got %+v; want ids %v with distances %v", got, wantIDs, wantDist)
		}
	}
}

func TestLSADefaultKeepsOneDimension(t *testing.T) {
	docs := memDocs{}
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc%d", i)
		scale := float32(i + 1)
		docs[uint32(i)] = withField(store.Document{ID: ids[i]}, "f", core.KindGeneric, scale, 2*scale, float32(i%2))
	}
	lsa, err := filter.NewLSA(docs, "f", core.KindGeneric, 0)
	if err != nil {
		t.Fatal(err)
	}
	query := withField(store.Document{ID: "q"}, "f", core.KindGeneric, 3, 6, 0)
	got, err := lsa.Filter(context.Background(), coarse(ids...), query)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d results", len(got))
	}
	// The rank-one reconstruction keeps the dominant (1, 2, *) direction, so the
	// scaled copy of the query ranks first.
	if got[0].ID != "doc2" {
		t.Errorf("best = %+v; want doc2", got[0])
	}
	for i := 1; i < len(got); i++ {
		if search.Less(got[i], got[i-1]) {
			t.Fatalf("results not sorted: %+v", got)
		}
	}
}

func TestLSAErrors(t *testing.T) {
	if _, err := filter.NewLSA(memDocs{}, "f", core.KindGeneric, -1); err == nil {
		t.Errorf("negative dimensions accepted")
	}
	if _, err := filter.NewLSA(memDocs{}, "f", core.Kind("x"), 1); !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("unknown kind error = %v", err)
	}
	lsa, _ := filter.NewLSA(memDocs{}, "f", core.KindGeneric, 1)
	if _, err := lsa.Filter(context.Background(), nil, store.Document{}); !errors.Is(err, filter.ErrMissingQueryField) {
		t.Errorf("missing query field error = %v", err)
	}
	query := withField(store.Document{ID: "q"}, "f", core.KindGeneric, 1)
	got, err := lsa.Filter(context.Background(), coarse("missing"), query)
	if err != nil || len(got) != 0 {
		t.Errorf("Filter with no usable candidates = %v, %v", got, err)
	}
}

func TestChain(t *testing.T) {
	docs := memDocs{
		0: withField(withField(store.Document{ID: "a"}, "x", core.KindGeneric, 5), "y", core.KindGeneric, 0),
		1: withField(withField(store.Document{ID: "b"}, "x", core.KindGeneric, 0), "y", core.KindGeneric, 5),
	}
	rx, _ := filter.NewRerank(docs, "x", core.KindGeneric)
	ry, _ := filter.NewRerank(docs, "y", core.KindGeneric)
	query := withField(withField(store.Document{ID: "q"}, "x", core.KindGeneric, 0), "y", core.KindGeneric, 0)

	got, err := filter.Chain{rx, ry}.Filter(context.Background(), coarse("a", "b"), query)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != "a" {
		t.Errorf("chain result = %+v; want the last filter to decide", got)
	}
}
