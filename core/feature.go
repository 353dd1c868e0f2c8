package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// Kind tags the descriptor family a feature vector belongs to.
type Kind string

// Built-in kinds.
const (
	KindGeneric        Kind = "generic"
	KindColorHistogram Kind = "colorhist"
	KindPatch          Kind = "patch"
	KindBOVW           Kind = "bovw"
	KindVLAD           Kind = "vlad"
)

// kindQualifierSep separates a kind from its qualifier, as in "bovw@<codebook id>".
const kindQualifierSep = "@"

// Qualify tags the kind with q. Vectors of one base kind built against different
// vocabularies carry different qualifiers and never compare equal.
func (k Kind) Qualify(q string) Kind {
	if q == "" {
		return k.Base()
	}
	return k.Base() + Kind(kindQualifierSep+q)
}

// Base returns the kind without its qualifier.
func (k Kind) Base() Kind {
	if i := strings.Index(string(k), kindQualifierSep); i >= 0 {
		return k[:i]
	}
	return k
}

// Qualifier returns the qualifier of the kind, or "".
func (k Kind) Qualifier() string {
	if i := strings.Index(string(k), kindQualifierSep); i >= 0 {
		return string(k[i+1:])
	}
	return ""
}

// Accepts reports whether a vector of kind other may be stored in or searched
// against a field declared as k. An unqualified k accepts any qualifier of
// its base kind; a qualified k accepts only itself.
func (k Kind) Accepts(other Kind) bool {
	if k == other {
		return true
	}
	return k.Qualifier() == "" && other.Base() == k
}

// encoding precision markers
const (
	precisionFloat32 byte = 0
	precisionFloat16 byte = 1
)

var featureMagic = [2]byte{'F', 'V'}

// FeatureVector is a fixed-length descriptor tagged with its kind.
// Values must not be modified after construction.
type FeatureVector struct {
	Kind   Kind
	Values []float32
}

// NewFeatureVector copies values into a new vector of the given kind.
func NewFeatureVector(kind Kind, values []float32) FeatureVector {
	v := make([]float32, len(values))
	copy(v, values)
	return FeatureVector{Kind: kind, Values: v}
}

// Dimensions returns the vector length.
func (f FeatureVector) Dimensions() int { return len(f.Values) }

// Distance computes the distance to other using the metric registered for the kind.
func (f FeatureVector) Distance(other FeatureVector) (float64, error) {
	if f.Kind != other.Kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, f.Kind, other.Kind)
	}
	if len(f.Values) != len(other.Values) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(f.Values), len(other.Values))
	}
	return KindDistance(f.Kind)(f.Values, other.Values), nil
}

// Equal reports whether both vectors have the same kind and identical values.
func (f FeatureVector) Equal(other FeatureVector) bool {
	if f.Kind != other.Kind || len(f.Values) != len(other.Values) {
		return false
	}
	for i := range f.Values {
		if math.Float32bits(f.Values[i]) != math.Float32bits(other.Values[i]) {
			return false
		}
	}
	return true
}

// Encode serializes the vector with full float32 precision.
//
// Layout: magic "FV", precision byte, kind length (uint16), kind, dimension (uint32),
// then little-endian values.
func (f FeatureVector) Encode() []byte {
	buf := f.header(precisionFloat32, 4)
	for _, v := range f.Values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// EncodeHalf serializes the vector as IEEE 754 half precision values.
// It halves the field size at the cost of roughly three significant digits.
func (f FeatureVector) EncodeHalf() []byte {
	buf := f.header(precisionFloat16, 2)
	for _, v := range f.Values {
		buf = binary.LittleEndian.AppendUint16(buf, float16.Fromfloat32(v).Bits())
	}
	return buf
}

func (f FeatureVector) header(precision byte, width int) []byte {
	buf := make([]byte, 0, 9+len(f.Kind)+width*len(f.Values))
	buf = append(buf, featureMagic[0], featureMagic[1], precision)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Kind)))
	buf = append(buf, f.Kind...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Values)))
	return buf
}

// DecodeFeature parses bytes produced by Encode or EncodeHalf.
func DecodeFeature(b []byte) (FeatureVector, error) {
	if len(b) < 9 || b[0] != featureMagic[0] || b[1] != featureMagic[1] {
		return FeatureVector{}, fmt.Errorf("%w: bad feature header", ErrCorrupt)
	}
	precision := b[2]
	kindLen := int(binary.LittleEndian.Uint16(b[3:5]))
	if len(b) < 9+kindLen {
		return FeatureVector{}, fmt.Errorf("%w: truncated kind", ErrCorrupt)
	}
	kind := Kind(b[5 : 5+kindLen])
	off := 5 + kindLen
	dim := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4

	var width int
	switch precision {
	case precisionFloat32:
		width = 4
	case precisionFloat16:
		width = 2
	default:
		return FeatureVector{}, fmt.Errorf("%w: unknown precision %d", ErrCorrupt, precision)
	}
	if len(b)-off != dim*width {
		return FeatureVector{}, fmt.Errorf("%w: expected %d value bytes, got %d", ErrCorrupt, dim*width, len(b)-off)
	}

	values := make([]float32, dim)
	for i := range values {
		p := off + i*width
		if precision == precisionFloat32 {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[p:]))
		} else {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(b[p:])).Float32()
		}
	}
	return FeatureVector{Kind: kind, Values: values}, nil
}
