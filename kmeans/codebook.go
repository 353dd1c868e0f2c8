package kmeans

import (
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/patrikhermansson/cbir/core"
)

// ErrEmptyCodebook is returned when a codebook without clusters is saved or used.
var ErrEmptyCodebook = errors.New("codebook has no clusters")

// Cluster owns one centroid and the training indices assigned to it.
// Members is a training-time artifact and is never persisted.
type Cluster struct {
	Centroid []float32
	Members  []int
}

// Codebook is an ordered set of clusters forming a visual vocabulary.
// It is read-only once training has finished and is safe for concurrent reads.
type Codebook struct {
	ID       string
	Clusters []Cluster
}

// NewCodebook builds a codebook from centroids and derives its identity from their contents.
func NewCodebook(centroids [][]float32) *Codebook {
	clusters := make([]Cluster, len(centroids))
	for i, c := range centroids {
		cp := make([]float32, len(c))
		copy(cp, c)
		clusters[i] = Cluster{Centroid: cp}
	}
	cb := &Codebook{Clusters: clusters}
	cb.ID = cb.fingerprint()
	return cb
}

// Size returns the vocabulary size.
func (cb *Codebook) Size() int { return len(cb.Clusters) }

// Dimensions returns the centroid dimensionality, or 0 for an empty codebook.
func (cb *Codebook) Dimensions() int {
	if len(cb.Clusters) == 0 {
		return 0
	}
	return len(cb.Clusters[0].Centroid)
}

// Centroids returns the centroid slices in cluster order. Callers must not modify them.
func (cb *Codebook) Centroids() [][]float32 {
	out := make([][]float32, len(cb.Clusters))
	for i := range cb.Clusters {
		out[i] = cb.Clusters[i].Centroid
	}
	return out
}

// Nearest returns the closest cluster to vec; ties resolve to the lowest index.
func (cb *Codebook) Nearest(vec []float32, distance core.DistanceFunc) (int, float64) {
	return core.Nearest(vec, cb.Centroids(), distance)
}

func (cb *Codebook) fingerprint() string {
	h := xxhash.New()
	var buf [4]byte
	for _, c := range cb.Clusters {
		for _, v := range c.Centroid {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			_, _ = h.Write(buf[:])
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// serializedCodebook is the persisted form of a codebook: centroids only.
type serializedCodebook struct {
	ID         string
	Dimensions int
	Centroids  [][]float32
}

// Save writes the centroids to path using gob encoding.
// It refuses to overwrite an existing artifact.
func (cb *Codebook) Save(path string) error {
	if len(cb.Clusters) == 0 {
		return ErrEmptyCodebook
	}
	ser := serializedCodebook{ID: cb.ID, Dimensions: cb.Dimensions(), Centroids: cb.Centroids()}
	err := core.WriteArtifact(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(ser)
	})
	if err != nil {
		return fmt.Errorf("save codebook: %w", err)
	}
	return nil
}

// LoadCodebook reads a codebook written by Save. Membership is empty after loading.
func LoadCodebook(path string) (*Codebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load codebook %s: %w", path, err)
	}
	defer f.Close()

	var ser serializedCodebook
	if err := gob.NewDecoder(f).Decode(&ser); err != nil {
		return nil, fmt.Errorf("load codebook %s: %w: %v", path, core.ErrCorrupt, err)
	}
	if len(ser.Centroids) == 0 {
		return nil, fmt.Errorf("load codebook %s: %w", path, ErrEmptyCodebook)
	}
	for i, c := range ser.Centroids {
		if len(c) != ser.Dimensions {
			return nil, fmt.Errorf("load codebook %s: centroid %d: %w", path, i, core.ErrDimensionMismatch)
		}
	}
	cb := NewCodebook(ser.Centroids)
	if ser.ID != "" {
		cb.ID = ser.ID
	}
	return cb, nil
}
