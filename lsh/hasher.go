package lsh

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/patrikhermansson/cbir/core"
)

// Hasher maps a feature vector to one integer code per bundle.
type Hasher interface {
	Generate(v []float32) ([]int, error)
	Bundles() int
}

// BitSampling hashes with the signs of random projections.
// The zero value is usable once ReadHashFunctions or GenerateHashFunctions succeeded.
type BitSampling struct {
	bank *Bank
}

// Gaussian hashes with quantized Gaussian projections.
// The zero value is usable once ReadHashFunctions or GenerateHashFunctions succeeded.
type Gaussian struct {
	bank *Bank
}

// NewHasher returns the hasher matching the bank's scheme.
func NewHasher(bank *Bank) (Hasher, error) {
	switch bank.Scheme {
	case BitSamplingScheme:
		return &BitSampling{bank: bank}, nil
	case GaussianScheme:
		return &Gaussian{bank: bank}, nil
	default:
		return nil, fmt.Errorf("lsh: unknown scheme %d", bank.Scheme)
	}
}

// LoadHasher reads a bank from path and wraps it in the matching hasher.
func LoadHasher(path string) (Hasher, error) {
	bank, err := ReadBank(path)
	if err != nil {
		return nil, err
	}
	return NewHasher(bank)
}

// ReadHashFunctions loads the bank at path.
func (h *BitSampling) ReadHashFunctions(path string) error {
	bank, err := loadScheme(path, BitSamplingScheme)
	if err != nil {
		return err
	}
	h.bank = bank
	return nil
}

// GenerateHashFunctions draws, persists and loads a new bank.
func (h *BitSampling) GenerateHashFunctions(path string, params Params, seed int64) error {
	bank, err := GenerateHashFunctions(path, BitSamplingScheme, params, seed)
	if err != nil {
		return err
	}
	h.bank = bank
	return nil
}

// Bundles returns the number of codes per vector, or 0 before loading.
func (h *BitSampling) Bundles() int {
	if h.bank == nil {
		return 0
	}
	return h.bank.Params.Bundles
}

// Generate returns one code per bundle: bit j is set when the j-th projection is positive.
func (h *BitSampling) Generate(v []float32) ([]int, error) {
	if h.bank == nil {
		return nil, ErrNotInitialized
	}
	if err := checkDimensions(h.bank, v); err != nil {
		return nil, err
	}
	codes := make([]int, h.bank.Params.Bundles)
	for i, bundle := range h.bank.Coefficients {
		code := 0
		for j, row := range bundle {
			if dot(row, v) > 0 {
				code |= 1 << j
			}
		}
		codes[i] = code
	}
	return codes, nil
}

// ReadHashFunctions loads the bank at path.
func (h *Gaussian) ReadHashFunctions(path string) error {
	bank, err := loadScheme(path, GaussianScheme)
	if err != nil {
		return err
	}
	h.bank = bank
	return nil
}

// GenerateHashFunctions draws, persists and loads a new bank.
func (h *Gaussian) GenerateHashFunctions(path string, params Params, seed int64) error {
	bank, err := GenerateHashFunctions(path, GaussianScheme, params, seed)
	if err != nil {
		return err
	}
	h.bank = bank
	return nil
}

// Bundles returns the number of codes per vector, or 0 before loading.
func (h *Gaussian) Bundles() int {
	if h.bank == nil {
		return 0
	}
	return h.bank.Params.Bundles
}

// Generate returns floor((a.v + b) / w) for every bundle.
func (h *Gaussian) Generate(v []float32) ([]int, error) {
	if h.bank == nil {
		return nil, ErrNotInitialized
	}
	if err := checkDimensions(h.bank, v); err != nil {
		return nil, err
	}
	w := h.bank.Params.BinWidth
	codes := make([]int, h.bank.Params.Bundles)
	for i, bundle := range h.bank.Coefficients {
		codes[i] = int(math.Floor((dot(bundle[0], v) + h.bank.Offsets[i]) / w))
	}
	return codes, nil
}

func loadScheme(path string, scheme Scheme) (*Bank, error) {
	bank, err := ReadBank(path)
	if err != nil {
		return nil, err
	}
	if bank.Scheme != scheme {
		return nil, fmt.Errorf("%w: %s holds %s, want %s", ErrSchemeMismatch, path, bank.Scheme, scheme)
	}
	return bank, nil
}

func checkDimensions(bank *Bank, v []float32) error {
	if len(v) != bank.Params.Dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, hash bank %d",
			core.ErrDimensionMismatch, len(v), bank.Params.Dimensions)
	}
	return nil
}

func dot(row []float64, v []float32) float64 {
	var s float64
	for i, c := range row {
		s += c * float64(v[i])
	}
	return s
}

// EncodeCodes serializes hash codes as a sequence of signed varints.
func EncodeCodes(codes []int) []byte {
	buf := make([]byte, 0, len(codes)*binary.MaxVarintLen32)
	for _, c := range codes {
		buf = binary.AppendVarint(buf, int64(c))
	}
	return buf
}

// DecodeCodes parses bytes produced by EncodeCodes.
func DecodeCodes(b []byte) ([]int, error) {
	var codes []int
	for len(b) > 0 {
		v, n := binary.Varint(b)
		if n <= 0 {
			return nil, fmt.Errorf("%w: hash codes", core.ErrCorrupt)
		}
		codes = append(codes, int(v))
		b = b[n:]
	}
	return codes, nil
}

// CodeKey renders the code of one bundle as a bucket key, prefixed with the bundle index
// so equal codes from different bundles never collide.
func CodeKey(bundle, code int) string {
	return strconv.Itoa(bundle) + ":" + strconv.Itoa(code)
}
