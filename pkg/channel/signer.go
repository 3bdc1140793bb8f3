package channel

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// DefaultAlgorithm is the HMAC hash used when none is configured.
const DefaultAlgorithm = "sha1"

// Signer computes and verifies channel signatures.
// A nil *Signer behaves like a signer without a key.
type Signer struct {
	key    []byte
	hash   func() hash.Hash
	hexLen int
}

// NewSigner creates a signer for the given key and algorithm
// (sha1, sha256, sha512 or md5). An empty key yields an open-mode signer.
func NewSigner(key, algo string) (*Signer, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}

	var fn func() hash.Hash
	switch strings.ToLower(algo) {
	case "sha1":
		fn = sha1.New
	case "sha256":
		fn = sha256.New
	case "sha512":
		fn = sha512.New
	case "md5":
		fn = md5.New
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}

	s := &Signer{hash: fn}
	if key != "" {
		s.key = []byte(key)
		s.hexLen = fn().Size() * 2
	}

	return s, nil
}

// Enabled reports whether a signing key is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// SignatureHexLen is the length of a hex signature, 0 in open mode.
func (s *Signer) SignatureHexLen() int {
	if !s.Enabled() {
		return 0
	}
	return s.hexLen
}

func (s *Signer) sign(value string) []byte {
	if !s.Enabled() {
		return nil
	}
	mac := hmac.New(s.hash, s.key)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// PrivateSignature signs a private channel id.
func (s *Signer) PrivateSignature(privateID []byte) []byte {
	return s.sign(hex.EncodeToString(privateID))
}

// PairSignature signs a private/public id pairing.
func (s *Signer) PairSignature(privateID, publicID []byte) []byte {
	return s.sign(hex.EncodeToString(privateID) + ":" + hex.EncodeToString(publicID))
}

// PublicSignature signs a bare public channel id.
func (s *Signer) PublicSignature(publicID []byte) []byte {
	return s.sign("public:" + hex.EncodeToString(publicID))
}

// IsSignatureValid checks a private channel signature. Fails closed without a key.
func (s *Signer) IsSignatureValid(privateID, signature []byte) bool {
	return s.verify(s.PrivateSignature(privateID), signature)
}

// IsPairSignatureValid checks a private/public pair signature. Fails closed without a key.
func (s *Signer) IsPairSignatureValid(privateID, publicID, signature []byte) bool {
	return s.verify(s.PairSignature(privateID, publicID), signature)
}

// IsPublicSignatureValid checks a public-only signature. Fails closed without a key.
func (s *Signer) IsPublicSignatureValid(publicID, signature []byte) bool {
	return s.verify(s.PublicSignature(publicID), signature)
}

func (s *Signer) verify(expected, signature []byte) bool {
	if !s.Enabled() || len(expected) == 0 || len(signature) == 0 {
		return false
	}
	return hmac.Equal(expected, signature)
}
