// pkg/core/errors.go
package core

import "errors"

var (
	// ErrInvalidConfiguration is returned for a malformed camera, position or
	// sampling configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyInput is returned when sampling from an empty recorded path.
	ErrEmptyInput = errors.New("empty input")

	// ErrMissingPair is returned when base and annotated image sets do not
	// share the same keys.
	ErrMissingPair = errors.New("missing image pair")

	// ErrSimulatorUnavailable is returned when the simulator cannot be
	// reached or was never started.
	ErrSimulatorUnavailable = errors.New("simulator unavailable")

	// ErrUnsupportedVersion is returned when a history file was written with
	// a format version this build does not read.
	ErrUnsupportedVersion = errors.New("unsupported file version")
)
