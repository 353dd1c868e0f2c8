package core

import "errors"

var (
	// ErrKindMismatch is returned when two feature vectors of different kinds are compared.
	ErrKindMismatch = errors.New("feature kind mismatch")

	// ErrDimensionMismatch is returned when vector lengths disagree.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnknownKind is returned when a feature kind has not been registered.
	ErrUnknownKind = errors.New("unknown feature kind")

	// ErrUnknownDistance is returned for an unregistered distance name.
	ErrUnknownDistance = errors.New("unknown distance")

	// ErrArtifactExists is returned when a build artifact would be overwritten.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrCorrupt is returned when serialized data cannot be decoded.
	ErrCorrupt = errors.New("corrupt encoding")
)
