package extract

import (
	"image"

	"github.com/patrikhermansson/cbir/core"
)

// GridPatches samples Size x Size grey-level patches on a regular grid with the
// given Step. Each patch is mean-centred and L2-normalized. Images smaller than
// one patch yield no descriptors.
type GridPatches struct {
	Size int
	Step int
}

func NewGridPatches(size, step int) *GridPatches {
	if size < 1 {
		size = 1
	}
	if step < 1 {
		step = size
	}
	return &GridPatches{Size: size, Step: step}
}

func (p *GridPatches) Kind() core.Kind { return core.KindPatch }

func (p *GridPatches) Dimensions() int { return p.Size * p.Size }

func (p *GridPatches) Extract(img image.Image) ([]core.FeatureVector, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}
	var out []core.FeatureVector
	for y := bounds.Min.Y; y+p.Size <= bounds.Max.Y; y += p.Step {
		for x := bounds.Min.X; x+p.Size <= bounds.Max.X; x += p.Step {
			out = append(out, core.FeatureVector{Kind: p.Kind(), Values: p.patch(img, x, y)})
		}
	}
	return out, nil
}

func (p *GridPatches) patch(img image.Image, x0, y0 int) []float32 {
	values := make([]float32, 0, p.Dimensions())
	var mean float32
	for y := y0; y < y0+p.Size; y++ {
		for x := x0; x < x0+p.Size; x++ {
			v := grey(img, x, y)
			values = append(values, v)
			mean += v
		}
	}
	mean /= float32(len(values))
	for i := range values {
		values[i] -= mean
	}
	core.NormalizeVector(values)
	return values
}
