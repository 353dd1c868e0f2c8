// Package lsh generates locality-sensitive hash codes for feature vectors.
//
// Two schemes share one persisted bank format: bit sampling (the sign of random
// projections packed into an integer per bundle) and Gaussian p-stable hashing
// (floor((a.v + b) / w) per bundle). Equal codes only nominate candidates; callers
// must always confirm them with an exact distance.
package lsh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/patrikhermansson/cbir/core"
)

var (
	// ErrNotInitialized is returned when hashing is attempted before a bank was loaded.
	ErrNotInitialized = errors.New("hash functions not loaded")

	// ErrSchemeMismatch is returned when a bank is loaded into a hasher of another scheme.
	ErrSchemeMismatch = errors.New("hash bank scheme mismatch")
)

// Scheme identifies the hash family of a bank.
type Scheme uint32

const (
	// BitSamplingScheme packs signs of random projections into integers.
	BitSamplingScheme Scheme = 1
	// GaussianScheme quantizes Gaussian projections into bins of a fixed width.
	GaussianScheme Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case BitSamplingScheme:
		return "bits"
	case GaussianScheme:
		return "gaussian"
	default:
		return fmt.Sprintf("scheme(%d)", uint32(s))
	}
}

// ParseScheme parses "bits" or "gaussian".
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "bits", "bitsampling", "bit-sampling":
		return BitSamplingScheme, nil
	case "gaussian", "lsh":
		return GaussianScheme, nil
	default:
		return 0, fmt.Errorf("unknown hash scheme %q", s)
	}
}

// maxBits bounds the bits per bundle so a code fits in an int on every platform.
const maxBits = 31

// Params are the scalar parameters of a bank.
type Params struct {
	Bits       int     // bits per bundle (bit sampling only)
	Dimensions int     // input dimensionality
	Bundles    int     // number of hash codes per vector
	BinWidth   float64 // bin width w (Gaussian) or coefficient range [-w/2, w/2] (bit sampling)
}

func (p Params) validate(scheme Scheme) error {
	if p.Dimensions <= 0 || p.Bundles <= 0 {
		return fmt.Errorf("lsh: dimensions and bundles must be positive, got %d and %d", p.Dimensions, p.Bundles)
	}
	if p.BinWidth <= 0 {
		return fmt.Errorf("lsh: bin width must be positive, got %v", p.BinWidth)
	}
	if scheme == BitSamplingScheme && (p.Bits <= 0 || p.Bits > maxBits) {
		return fmt.Errorf("lsh: bits must be in [1, %d], got %d", maxBits, p.Bits)
	}
	return nil
}

// Bank holds the random parameters of a hash family. It is read-only after creation.
type Bank struct {
	Scheme Scheme
	Params Params
	// Coefficients is indexed [bundle][row][dimension]. Bit sampling has Bits rows
	// per bundle, the Gaussian scheme has exactly one.
	Coefficients [][][]float64
	// Offsets holds b per bundle for the Gaussian scheme.
	Offsets []float64
}

// NewBank draws a fresh bank for scheme from rnd.
func NewBank(scheme Scheme, params Params, rnd *rand.Rand) (*Bank, error) {
	if err := params.validate(scheme); err != nil {
		return nil, err
	}
	b := &Bank{Scheme: scheme, Params: params}
	switch scheme {
	case BitSamplingScheme:
		b.Coefficients = make([][][]float64, params.Bundles)
		for i := range b.Coefficients {
			b.Coefficients[i] = make([][]float64, params.Bits)
			for j := range b.Coefficients[i] {
				row := make([]float64, params.Dimensions)
				for d := range row {
					row[d] = (rnd.Float64() - 0.5) * params.BinWidth
				}
				b.Coefficients[i][j] = row
			}
		}
	case GaussianScheme:
		b.Params.Bits = 0
		b.Coefficients = make([][][]float64, params.Bundles)
		b.Offsets = make([]float64, params.Bundles)
		for i := range b.Coefficients {
			row := make([]float64, params.Dimensions)
			for d := range row {
				row[d] = rnd.NormFloat64()
			}
			b.Coefficients[i] = [][]float64{row}
			b.Offsets[i] = rnd.Float64() * params.BinWidth
		}
	default:
		return nil, fmt.Errorf("lsh: unknown scheme %d", scheme)
	}
	return b, nil
}

func (b *Bank) rows() int {
	if b.Scheme == BitSamplingScheme {
		return b.Params.Bits
	}
	return 1
}

var bankMagic = [4]byte{'L', 'S', 'H', 'B'}

const bankVersion = uint32(1)

// Save writes the bank to path. The artifact is written once: an existing file
// is reported as core.ErrArtifactExists and left untouched.
//
// Layout (little endian): magic, version, scheme, bits, dimensions, bundles (uint32),
// bin width (float64), coefficients flattened bundle-major (float64), offsets (float64).
func (b *Bank) Save(path string) error {
	if err := core.WriteArtifact(path, b.writeTo); err != nil {
		return fmt.Errorf("save hash bank: %w", err)
	}
	return nil
}

func (b *Bank) writeTo(w io.Writer) error {
	if _, err := w.Write(bankMagic[:]); err != nil {
		return err
	}
	header := []uint32{
		bankVersion,
		uint32(b.Scheme),
		uint32(b.Params.Bits),
		uint32(b.Params.Dimensions),
		uint32(b.Params.Bundles),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Params.BinWidth); err != nil {
		return err
	}
	for _, bundle := range b.Coefficients {
		for _, row := range bundle {
			if err := binary.Write(w, binary.LittleEndian, row); err != nil {
				return err
			}
		}
	}
	if b.Scheme == GaussianScheme {
		if err := binary.Write(w, binary.LittleEndian, b.Offsets); err != nil {
			return err
		}
	}
	return nil
}

// ReadBank loads a bank written by Save.
func ReadBank(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read hash bank %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("read hash bank %s: %w", path, err)
	}
	b, err := readBank(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, fmt.Errorf("read hash bank %s: %w", path, err)
	}
	return b, nil
}

// bankHeaderSize covers magic, the five header integers and the bin width.
const bankHeaderSize = 4 + 5*4 + 8

// readBank decodes a bank of size bytes. The header must describe exactly the
// payload that follows before anything is allocated for it.
func readBank(r io.Reader, size int64) (*Bank, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != bankMagic {
		return nil, fmt.Errorf("%w: bad magic", core.ErrCorrupt)
	}
	header := make([]uint32, 5)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", core.ErrCorrupt, err)
	}
	if header[0] != bankVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", core.ErrCorrupt, header[0])
	}
	b := &Bank{
		Scheme: Scheme(header[1]),
		Params: Params{
			Bits:       int(header[2]),
			Dimensions: int(header[3]),
			Bundles:    int(header[4]),
		},
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Params.BinWidth); err != nil {
		return nil, fmt.Errorf("%w: bin width: %v", core.ErrCorrupt, err)
	}
	if b.Scheme != BitSamplingScheme && b.Scheme != GaussianScheme {
		return nil, fmt.Errorf("%w: unknown scheme %d", core.ErrCorrupt, b.Scheme)
	}
	if err := b.Params.validate(b.Scheme); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}
	rows := b.rows()
	perBundle := int64(rows) * int64(b.Params.Dimensions)
	if b.Scheme == GaussianScheme {
		perBundle++
	}
	payload := size - bankHeaderSize
	if payload < 0 || payload%8 != 0 || payload/8%perBundle != 0 || payload/8/perBundle != int64(b.Params.Bundles) {
		return nil, fmt.Errorf("%w: header describes %d bundles of %d values, file holds %d payload bytes",
			core.ErrCorrupt, b.Params.Bundles, perBundle, payload)
	}
	b.Coefficients = make([][][]float64, b.Params.Bundles)
	for i := range b.Coefficients {
		b.Coefficients[i] = make([][]float64, rows)
		for j := range b.Coefficients[i] {
			row := make([]float64, b.Params.Dimensions)
			if err := binary.Read(r, binary.LittleEndian, row); err != nil {
				return nil, fmt.Errorf("%w: coefficients: %v", core.ErrCorrupt, err)
			}
			b.Coefficients[i][j] = row
		}
	}
	if b.Scheme == GaussianScheme {
		b.Offsets = make([]float64, b.Params.Bundles)
		if err := binary.Read(r, binary.LittleEndian, b.Offsets); err != nil {
			return nil, fmt.Errorf("%w: offsets: %v", core.ErrCorrupt, err)
		}
	}
	return b, nil
}

// GenerateHashFunctions draws a bank for scheme and persists it to path.
// It fails without drawing anything if path already exists.
func GenerateHashFunctions(path string, scheme Scheme, params Params, seed int64) (*Bank, error) {
	if core.FileExists(path) {
		return nil, fmt.Errorf("generate hash functions %s: %w", path, core.ErrArtifactExists)
	}
	b, err := NewBank(scheme, params, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	if err := b.Save(path); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateBitSampling is GenerateHashFunctions for the bit sampling scheme.
func GenerateBitSampling(path string, params Params, seed int64) (*Bank, error) {
	return GenerateHashFunctions(path, BitSamplingScheme, params, seed)
}

// GenerateGaussian is GenerateHashFunctions for the Gaussian scheme.
func GenerateGaussian(path string, params Params, seed int64) (*Bank, error) {
	return GenerateHashFunctions(path, GaussianScheme, params, seed)
}
