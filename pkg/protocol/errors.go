package protocol

import "errors"

var (
	// ErrMalformed is returned when a binary payload cannot be decoded.
	ErrMalformed = errors.New("malformed protocol message")
	// ErrEmptyBatch is returned when a request batch carries no requests.
	ErrEmptyBatch = errors.New("empty request batch")
	// ErrInvalidMessageID is returned for a message id that is not 32 decimal digits.
	ErrInvalidMessageID = errors.New("invalid message id")
)
