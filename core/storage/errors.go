package storage

import "errors"

var (
	// ErrEpoch is returned when the deployment epoch cannot be read or agreed on.
	ErrEpoch = errors.New("storage: failed to get start date")
	// ErrWrite is returned when a message cannot be persisted.
	ErrWrite = errors.New("storage: failed to save message")
	// ErrRead is returned when the log cannot be queried.
	ErrRead = errors.New("storage: failed to read messages")
)
