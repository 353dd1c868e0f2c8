// Package extract turns decoded images into feature vectors.
//
// The extractors here are reference implementations: simple, deterministic and
// cheap enough to drive the indexing pipeline and its tests.
package extract

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"sync"

	"github.com/patrikhermansson/cbir/core"
)

var (
	ErrUnknownExtractor = errors.New("unknown extractor")
	ErrEmptyImage       = errors.New("image has no pixels")
)

// Extractor is implemented by both Global and Local extractors.
type Extractor interface {
	Kind() core.Kind
}

// Global extracts one vector describing the whole image.
type Global interface {
	Extractor
	Extract(img image.Image) (core.FeatureVector, error)
}

// Local extracts a set of descriptors of fixed dimensionality.
type Local interface {
	Extractor
	Dimensions() int
	Extract(img image.Image) ([]core.FeatureVector, error)
}

// Decode reads and decodes a jpeg, png or gif file.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s: %w", path, ErrEmptyImage)
	}
	return img, nil
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Extractor{
		"colorhist": func() Extractor { return NewColorHistogram(4) },
		"patches":   func() Extractor { return NewGridPatches(8, 8) },
	}
)

// Register makes an extractor available to Lookup under name.
func Register(name string, factory func() Extractor) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("extractor %q already registered", name)
	}
	registry[name] = factory
	return nil
}

// Lookup returns a fresh extractor registered under name.
func Lookup(name string) (Extractor, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
	return factory(), nil
}

// Names lists the registered extractors in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// grey returns the luminance of the pixel at (x, y) in [0, 1].
func grey(img image.Image, x, y int) float32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return float32(0.299*float64(r)+0.587*float64(g)+0.114*float64(b)) / 0xffff
}
