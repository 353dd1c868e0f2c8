package extract

import (
	"image"

	"github.com/patrikhermansson/cbir/core"
)

// ColorHistogram is a joint RGB histogram with Bins levels per channel,
// L1-normalized so images of different sizes compare.
type ColorHistogram struct {
	Bins int
}

func NewColorHistogram(bins int) *ColorHistogram {
	if bins < 1 {
		bins = 1
	}
	return &ColorHistogram{Bins: bins}
}

func (h *ColorHistogram) Kind() core.Kind { return core.KindColorHistogram }

func (h *ColorHistogram) Dimensions() int { return h.Bins * h.Bins * h.Bins }

func (h *ColorHistogram) Extract(img image.Image) (core.FeatureVector, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return core.FeatureVector{}, ErrEmptyImage
	}
	hist := make([]float32, h.Dimensions())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			idx := (h.bin(r)*h.Bins+h.bin(g))*h.Bins + h.bin(b)
			hist[idx]++
		}
	}
	core.NormalizeL1(hist)
	return core.FeatureVector{Kind: h.Kind(), Values: hist}, nil
}

func (h *ColorHistogram) bin(c uint32) int {
	i := int(c) * h.Bins / 0x10000
	if i >= h.Bins {
		i = h.Bins - 1
	}
	return i
}
