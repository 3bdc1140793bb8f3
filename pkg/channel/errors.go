package channel

import "errors"

var (
	// ErrEmpty is returned when no channel is given.
	ErrEmpty = errors.New("no channel given")
	// ErrInvalidFormat is returned when a channel segment does not match the grammar.
	ErrInvalidFormat = errors.New("invalid channel format")
	// ErrInvalidSignature is returned when a required signature is missing or wrong.
	ErrInvalidSignature = errors.New("invalid channel signature")
	// ErrUnsupportedAlgorithm is returned for unknown HMAC algorithms.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)
