package extract_test

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/patrikhermansson/cbir/core"
	"github.com/patrikhermansson/cbir/extract"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestColorHistogram(t *testing.T) {
	img := solid(4, 4, color.RGBA{255, 0, 0, 255})
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{0, 0, 255, 255})
	}
	h := extract.NewColorHistogram(2)
	fv, err := h.Extract(img)
	if err != nil {
		t.Fatal(err)
	}
	if fv.Kind != core.KindColorHistogram || fv.Dimensions() != 8 {
		t.Fatalf("got kind %q with %d dims", fv.Kind, fv.Dimensions())
	}
	// red -> bin (1,0,0) = 4, blue -> bin (0,0,1) = 1
	if fv.Values[4] != 0.75 || fv.Values[1] != 0.25 {
		t.Errorf("histogram = %v", fv.Values)
	}
}

func TestGridPatches(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 20)})
		}
	}
	p := extract.NewGridPatches(4, 2)
	descs, err := p.Extract(img)
	if err != nil {
		t.Fatal(err)
	}
	// x in {0,2,4,6}, y in {0,2}
	if len(descs) != 8 {
		t.Fatalf("got %d patches; want 8", len(descs))
	}
	for _, d := range descs {
		if d.Dimensions() != p.Dimensions() {
			t.Fatalf("patch has %d dims", d.Dimensions())
		}
		var norm, sum float64
		for _, v := range d.Values {
			norm += float64(v) * float64(v)
			sum += float64(v)
		}
		if math.Abs(norm-1) > 1e-4 || math.Abs(sum) > 1e-4 {
			t.Errorf("patch not centred and normalized: norm=%v sum=%v", norm, sum)
		}
	}

	small, err := p.Extract(image.NewGray(image.Rect(0, 0, 3, 3)))
	if err != nil || len(small) != 0 {
		t.Errorf("small image gave %d patches, err %v", len(small), err)
	}
}

func TestFlatPatchIsZero(t *testing.T) {
	descs, err := extract.NewGridPatches(2, 2).Extract(solid(2, 2, color.White))
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range descs[0].Values {
		if v != 0 {
			t.Fatalf("flat patch = %v; want zeros", descs[0].Values)
		}
	}
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, solid(3, 2, color.Black)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	img, err := extract.Decode(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("decoded bounds %v", img.Bounds())
	}

	bad := filepath.Join(dir, "bad.jpg")
	os.WriteFile(bad, []byte("not an image"), 0o600)
	if _, err := extract.Decode(bad); err == nil {
		t.Errorf("Decode of garbage succeeded")
	}
	if _, err := extract.Decode(filepath.Join(dir, "missing.png")); err == nil {
		t.Errorf("Decode of missing file succeeded")
	}
}

func TestLookup(t *testing.T) {
	e, err := extract.Lookup("colorhist")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(extract.Global); !ok {
		t.Errorf("colorhist is %T; want Global", e)
	}
	e, err = extract.Lookup("patches")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(extract.Local); !ok {
		t.Errorf("patches is %T; want Local", e)
	}
	if _, err := extract.Lookup("sift"); !errors.Is(err, extract.ErrUnknownExtractor) {
		t.Errorf("Lookup(sift) error = %v", err)
	}
	if err := extract.Register("colorhist", nil); err == nil {
		t.Errorf("duplicate Register succeeded")
	}
}
