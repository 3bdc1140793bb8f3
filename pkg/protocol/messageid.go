package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// MessageIDLength is the size of a message id in bytes.
const MessageIDLength = 16

const (
	messageIDDigits = MessageIDLength * 2
	halfDigits      = messageIDDigits / 2
	halfModulus     = 10_000_000_000_000_000 // 10^16
)

// NewMessageID builds a message id from the deployment epoch and a counter.
// The hex form of the id is the zero-padded decimal epoch followed by the
// zero-padded decimal counter, so ids sharing an epoch sort by counter.
func NewMessageID(epoch, counter uint64) []byte {
	s := fmt.Sprintf("%016d%016d", epoch%halfModulus, counter%halfModulus)
	id, _ := hex.DecodeString(s)
	return id
}

// ParseMessageID decodes the textual form of a message id (32 decimal digits).
func ParseMessageID(s string) ([]byte, error) {
	if len(s) != messageIDDigits {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
		}
	}
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	return id, nil
}

// FormatMessageID renders a message id in its textual form.
func FormatMessageID(id []byte) string {
	return hex.EncodeToString(id)
}

// MessageCounter returns the counter half of a message id, or 0 if id is not well formed.
func MessageCounter(id []byte) uint64 {
	s := hex.EncodeToString(id)
	if len(s) != messageIDDigits {
		return 0
	}
	n, err := strconv.ParseUint(s[halfDigits:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
