package cluster

import "errors"

var (
	// ErrPresence is returned when presence keys cannot be read.
	ErrPresence = errors.New("cluster: failed to read presence")
	// ErrStats is returned when shared server stats cannot be read.
	ErrStats = errors.New("cluster: failed to read server stats")
)
