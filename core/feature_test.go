package core

import (
	"errors"
	"math"
	"testing"
)

func TestFeatureVectorRoundTrip(t *testing.T) {
	tests := []FeatureVector{
		NewFeatureVector(KindColorHistogram, []float32{0, 1.5, -2.25, 1e-7, float32(math.MaxFloat32)}),
		NewFeatureVector(KindGeneric, nil),
		NewFeatureVector("custom-kind", []float32{3}),
	}
	for _, fv := range tests {
		got, err := DecodeFeature(fv.Encode())
		if err != nil {
			t.Fatalf("DecodeFeature(%v): %v", fv, err)
		}
		if !got.Equal(fv) {
			t.Errorf("round trip = %v; want %v", got, fv)
		}
	}
}

func TestFeatureVectorHalfRoundTrip(t *testing.T) {
	fv := NewFeatureVector(KindVLAD, []float32{0.1, -0.5, 0.333, 0.9999, 0})
	got, err := DecodeFeature(fv.EncodeHalf())
	if err != nil {
		t.Fatalf("DecodeFeature: %v", err)
	}
	if got.Kind != fv.Kind || len(got.Values) != len(fv.Values) {
		t.Fatalf("round trip = %v; want %v", got, fv)
	}
	for i := range fv.Values {
		if math.Abs(float64(got.Values[i]-fv.Values[i])) > 1e-3 {
			t.Errorf("value %d = %v; want ~%v", i, got.Values[i], fv.Values[i])
		}
	}
	if len(fv.EncodeHalf()) >= len(fv.Encode()) {
		t.Errorf("half encoding is not smaller than full encoding")
	}
}

func TestDecodeFeatureCorrupt(t *testing.T) {
	fv := NewFeatureVector(KindPatch, []float32{1, 2, 3})
	enc := fv.Encode()
	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte{'X', 'X'}, enc[2:]...),
		"truncated": enc[:len(enc)-1],
	}
	for name, b := range cases {
		if _, err := DecodeFeature(b); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: error = %v; want ErrCorrupt", name, err)
		}
	}
}

func TestFeatureVectorDistance(t *testing.T) {
	a := NewFeatureVector(KindColorHistogram, []float32{1, 2, 3})
	b := NewFeatureVector(KindColorHistogram, []float32{2, 2, 1})
	d, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	// colorhist uses L1
	if !almostEqual(d, 3, 1e-9) {
		t.Errorf("Distance = %v; want 3", d)
	}

	other := NewFeatureVector(KindPatch, []float32{1, 2, 3})
	if _, err := a.Distance(other); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Distance across kinds error = %v; want ErrKindMismatch", err)
	}
	short := NewFeatureVector(KindColorHistogram, []float32{1})
	if _, err := a.Distance(short); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Distance across lengths error = %v; want ErrDimensionMismatch", err)
	}
}

func TestNewFeatureVectorCopies(t *testing.T) {
	src := []float32{1, 2}
	fv := NewFeatureVector(KindGeneric, src)
	src[0] = 99
	if fv.Values[0] != 1 {
		t.Errorf("NewFeatureVector did not copy its input")
	}
}

func TestQualifiedKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		base      Kind
		qualifier string
	}{
		{KindBOVW, KindBOVW, ""},
		{KindBOVW.Qualify("1f"), KindBOVW, "1f"},
		{KindVLAD.Qualify("1f").Qualify("2e"), KindVLAD, "2e"},
		{KindVLAD.Qualify(""), KindVLAD, ""},
	}
	for _, tt := range tests {
		if got := tt.kind.Base(); got != tt.base {
			t.Errorf("%q.Base() = %q; want %q", tt.kind, got, tt.base)
		}
		if got := tt.kind.Qualifier(); got != tt.qualifier {
			t.Errorf("%q.Qualifier() = %q; want %q", tt.kind, got, tt.qualifier)
		}
	}

	a, b := KindBOVW.Qualify("a"), KindBOVW.Qualify("b")
	if !KindBOVW.Accepts(a) || !a.Accepts(a) {
		t.Error("kind does not accept its own qualified form")
	}
	if a.Accepts(b) || a.Accepts(KindBOVW) || KindVLAD.Accepts(a) {
		t.Error("kind accepts a foreign qualifier or base")
	}
	if fn, err := LookupKind(a); err != nil || fn == nil {
		t.Errorf("LookupKind(%q) = %v", a, err)
	}
	if err := RegisterKind(Kind("custom@x"), Euclidean); err == nil {
		t.Error("RegisterKind accepted a qualified kind")
	}
}

func TestRegisterKind(t *testing.T) {
	kind := Kind("test-register-kind")
	if err := RegisterKind(kind, Tanimoto); err != nil {
		t.Fatalf("RegisterKind: %v", err)
	}
	if err := RegisterKind(kind, Tanimoto); err == nil {
		t.Errorf("RegisterKind twice succeeded")
	}
	if _, err := LookupKind(kind); err != nil {
		t.Errorf("LookupKind: %v", err)
	}
	if _, err := LookupKind("never-registered"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("LookupKind error = %v; want ErrUnknownKind", err)
	}
	found := false
	for _, k := range Kinds() {
		if k == kind {
			found = true
		}
	}
	if !found {
		t.Errorf("Kinds() does not list %q", kind)
	}
}
