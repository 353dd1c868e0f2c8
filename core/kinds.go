package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	kindsMu sync.RWMutex
	kinds   = map[Kind]DistanceFunc{
		KindGeneric:        Euclidean,
		KindColorHistogram: Manhattan,
		KindPatch:          Euclidean,
		KindBOVW:           Manhattan,
		KindVLAD:           Euclidean,
	}
)

// RegisterKind makes a feature kind known together with its distance function.
// Registering an existing kind is an error.
func RegisterKind(kind Kind, distance DistanceFunc) error {
	if kind == "" || distance == nil {
		return fmt.Errorf("register kind: empty kind or nil distance")
	}
	if kind != kind.Base() {
		return fmt.Errorf("register kind %q: qualified kinds resolve to their base kind", kind)
	}
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, ok := kinds[kind]; ok {
		return fmt.Errorf("register kind %q: already registered", kind)
	}
	kinds[kind] = distance
	return nil
}

// LookupKind returns the distance function registered for kind. A qualified kind
// falls back to the distance of its base kind.
func LookupKind(kind Kind) (DistanceFunc, error) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	fn, ok := kinds[kind]
	if !ok {
		fn, ok = kinds[kind.Base()]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return fn, nil
}

// KindDistance returns the registered distance for kind, or Euclidean when unknown.
func KindDistance(kind Kind) DistanceFunc {
	if fn, err := LookupKind(kind); err == nil {
		return fn
	}
	return Euclidean
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []Kind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
