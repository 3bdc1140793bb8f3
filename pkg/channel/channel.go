package channel

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IDLength is the size of private and public channel ids in bytes.
const IDLength = 16

const hexIDLength = IDLength * 2

// Channel is a parsed channel reference.
type Channel struct {
	PrivateID []byte
	PublicID  []byte
}

// HasPublicID reports whether the channel carries a public alias.
func (c Channel) HasPublicID() bool {
	return len(c.PublicID) > 0
}

// HexPrivateID returns the private id in lowercase hex.
func (c Channel) HexPrivateID() string {
	return hex.EncodeToString(c.PrivateID)
}

// HexPublicID returns the public id in lowercase hex, or "" if there is none.
func (c Channel) HexPublicID() string {
	if !c.HasPublicID() {
		return ""
	}
	return hex.EncodeToString(c.PublicID)
}

// IsValidID reports whether id has the channel id size.
func IsValidID(id []byte) bool {
	return len(id) == IDLength
}

// Parse validates a single channel segment.
// skipSign waives the private signature only; a public id always needs a pair signature.
func (s *Signer) Parse(segment string, skipSign bool) (Channel, error) {
	head, signature, hasSignature := strings.Cut(segment, ".")
	privateHex, publicHex, hasPublic := strings.Cut(head, ":")

	if !isLowerHex(privateHex, hexIDLength) {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidFormat, segment)
	}
	if hasPublic && !isLowerHex(publicHex, hexIDLength) {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidFormat, segment)
	}
	if hasSignature {
		n := s.SignatureHexLen()
		if n == 0 || !isLowerHex(signature, n) {
			return Channel{}, fmt.Errorf("%w: %q", ErrInvalidFormat, segment)
		}
	}

	ch := Channel{}
	ch.PrivateID, _ = hex.DecodeString(privateHex)
	if hasPublic {
		ch.PublicID, _ = hex.DecodeString(publicHex)
	}

	var sig []byte
	if hasSignature {
		sig, _ = hex.DecodeString(signature)
	}

	switch {
	case hasPublic:
		if !s.IsPairSignatureValid(ch.PrivateID, ch.PublicID, sig) {
			return Channel{}, ErrInvalidSignature
		}
	case s.Enabled() && !skipSign:
		if !s.IsSignatureValid(ch.PrivateID, sig) {
			return Channel{}, ErrInvalidSignature
		}
	}

	return ch, nil
}

// ParseList parses "/"-separated channel segments. One bad segment rejects the list.
func (s *Signer) ParseList(query string, skipSign bool) ([]Channel, error) {
	if query == "" {
		return nil, ErrEmpty
	}

	parts := strings.Split(query, "/")
	channels := make([]Channel, 0, len(parts))
	for _, part := range parts {
		ch, err := s.Parse(part, skipSign)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	return channels, nil
}

// Format renders a channel in wire form, signed when a key is configured.
func (s *Signer) Format(ch Channel) string {
	var b strings.Builder
	b.WriteString(ch.HexPrivateID())

	var sig []byte
	if ch.HasPublicID() {
		b.WriteByte(':')
		b.WriteString(ch.HexPublicID())
		sig = s.PairSignature(ch.PrivateID, ch.PublicID)
	} else {
		sig = s.PrivateSignature(ch.PrivateID)
	}

	if len(sig) > 0 {
		b.WriteByte('.')
		b.WriteString(hex.EncodeToString(sig))
	}

	return b.String()
}

// FormatList renders channels joined with "/".
func (s *Signer) FormatList(channels ...Channel) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = s.Format(ch)
	}
	return strings.Join(parts, "/")
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
