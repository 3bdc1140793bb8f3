package channel_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushserver/pkg/channel"
)

const (
	privateHex = "0123456789abcdef0123456789abcdef"
	publicHex  = "fedcba9876543210fedcba9876543210"
)

func mustID(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func hmacHex(key, value string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewSigner(t *testing.T) {
	t.Parallel()

	t.Run("defaults to sha1", func(t *testing.T) {
		t.Parallel()

		s, err := channel.NewSigner("secret", "")
		require.NoError(t, err)
		assert.True(t, s.Enabled())
		assert.Equal(t, 40, s.SignatureHexLen())
	})

	t.Run("sha256 digest length", func(t *testing.T) {
		t.Parallel()

		s, err := channel.NewSigner("secret", "SHA256")
		require.NoError(t, err)
		assert.Equal(t, 64, s.SignatureHexLen())
	})

	t.Run("open mode without key", func(t *testing.T) {
		t.Parallel()

		s, err := channel.NewSigner("", "sha1")
		require.NoError(t, err)
		assert.False(t, s.Enabled())
		assert.Equal(t, 0, s.SignatureHexLen())
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		t.Parallel()

		_, err := channel.NewSigner("secret", "crc32")
		assert.ErrorIs(t, err, channel.ErrUnsupportedAlgorithm)
	})
}

func TestSigner_Parse(t *testing.T) {
	t.Parallel()

	s, err := channel.NewSigner("secret", "sha1")
	require.NoError(t, err)

	t.Run("private channel with valid signature", func(t *testing.T) {
		t.Parallel()

		ch, err := s.Parse(privateHex+"."+hmacHex("secret", privateHex), false)
		require.NoError(t, err)
		assert.Equal(t, privateHex, ch.HexPrivateID())
		assert.False(t, ch.HasPublicID())
	})

	t.Run("private channel without signature is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := s.Parse(privateHex, false)
		assert.ErrorIs(t, err, channel.ErrInvalidSignature)
	})

	t.Run("skipSign waives the private signature", func(t *testing.T) {
		t.Parallel()

		ch, err := s.Parse(privateHex, true)
		require.NoError(t, err)
		assert.Equal(t, privateHex, ch.HexPrivateID())
	})

	t.Run("public channel needs pair signature", func(t *testing.T) {
		t.Parallel()

		sig := hmacHex("secret", privateHex+":"+publicHex)
		ch, err := s.Parse(privateHex+":"+publicHex+"."+sig, false)
		require.NoError(t, err)
		assert.Equal(t, publicHex, ch.HexPublicID())

		// skipSign never waives the pair signature
		_, err = s.Parse(privateHex+":"+publicHex, true)
		assert.ErrorIs(t, err, channel.ErrInvalidSignature)
	})

	t.Run("private signature does not authorize a public id", func(t *testing.T) {
		t.Parallel()

		sig := hmacHex("secret", privateHex)
		_, err := s.Parse(privateHex+":"+publicHex+"."+sig, false)
		assert.ErrorIs(t, err, channel.ErrInvalidSignature)
	})

	t.Run("malformed segments", func(t *testing.T) {
		t.Parallel()

		for _, in := range []string{
			"",
			"xyz",
			strings.ToUpper(privateHex),
			privateHex[:31],
			privateHex + ":" + publicHex[:10],
			privateHex + ".abc",
		} {
			_, err := s.Parse(in, true)
			assert.ErrorIs(t, err, channel.ErrInvalidFormat, in)
		}
	})
}

func TestSigner_OpenMode(t *testing.T) {
	t.Parallel()

	s, err := channel.NewSigner("", "")
	require.NoError(t, err)

	t.Run("private channels need no signature", func(t *testing.T) {
		ch, err := s.Parse(privateHex, false)
		require.NoError(t, err)
		assert.Equal(t, privateHex, ch.HexPrivateID())
	})

	t.Run("public channels fail closed", func(t *testing.T) {
		_, err := s.Parse(privateHex+":"+publicHex, false)
		assert.ErrorIs(t, err, channel.ErrInvalidSignature)
	})

	t.Run("public signature check fails closed", func(t *testing.T) {
		pub := mustID(t, publicHex)
		assert.False(t, s.IsPublicSignatureValid(pub, s.PublicSignature(pub)))
		assert.False(t, s.IsPublicSignatureValid(pub, []byte("anything")))
	})

	t.Run("nil signer is open mode", func(t *testing.T) {
		var nilSigner *channel.Signer
		assert.False(t, nilSigner.Enabled())
		_, err := nilSigner.Parse(privateHex, false)
		assert.NoError(t, err)
	})
}

func TestSigner_PublicSignature(t *testing.T) {
	t.Parallel()

	s, err := channel.NewSigner("secret", "sha1")
	require.NoError(t, err)

	pub := mustID(t, publicHex)
	sig := s.PublicSignature(pub)

	assert.Equal(t, hmacHex("secret", "public:"+publicHex), hex.EncodeToString(sig))
	assert.True(t, s.IsPublicSignatureValid(pub, sig))

	t.Run("pair signature is a different namespace", func(t *testing.T) {
		pair := s.PairSignature(mustID(t, privateHex), pub)
		assert.False(t, s.IsPublicSignatureValid(pub, pair))
	})

	t.Run("flipping any byte breaks the signature", func(t *testing.T) {
		for i := range sig {
			forged := bytes.Clone(sig)
			forged[i] ^= 0x01
			assert.False(t, s.IsPublicSignatureValid(pub, forged), "byte %d", i)
		}
	})
}

func TestSigner_ParseList(t *testing.T) {
	t.Parallel()

	s, err := channel.NewSigner("secret", "sha1")
	require.NoError(t, err)

	a := channel.Channel{PrivateID: mustID(t, privateHex)}
	b := channel.Channel{PrivateID: mustID(t, publicHex), PublicID: mustID(t, privateHex)}

	t.Run("round trips formatted channels", func(t *testing.T) {
		channels, err := s.ParseList(s.FormatList(a, b), false)
		require.NoError(t, err)
		require.Len(t, channels, 2)
		assert.Equal(t, a.PrivateID, channels[0].PrivateID)
		assert.Nil(t, channels[0].PublicID)
		assert.Equal(t, b.PrivateID, channels[1].PrivateID)
		assert.Equal(t, b.PublicID, channels[1].PublicID)
	})

	t.Run("one bad segment rejects the list", func(t *testing.T) {
		_, err := s.ParseList(s.Format(a)+"/"+privateHex, false)
		assert.ErrorIs(t, err, channel.ErrInvalidSignature)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := s.ParseList("", false)
		assert.ErrorIs(t, err, channel.ErrEmpty)
	})

	t.Run("forged signatures are rejected", func(t *testing.T) {
		formatted := s.Format(b)
		dot := strings.LastIndexByte(formatted, '.')
		sig := []byte(formatted[dot+1:])
		for i := range sig {
			forged := bytes.Clone(sig)
			if forged[i] == '0' {
				forged[i] = '1'
			} else {
				forged[i] = '0'
			}
			_, err := s.Parse(formatted[:dot+1]+string(forged), false)
			assert.Error(t, err, "position %d", i)
		}
	})
}
