package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	k, err := GenerateSessionKey()
	require.NoError(t, err)
	return k
}

func TestSessionCipher_RoundTrip(t *testing.T) {
	c := NewSessionCipher(testKey(t))
	require.NoError(t, c.Validate())

	plain := []byte(`{"dc":2,"auth_key":"opaque"}`)
	token, err := c.Encrypt(plain)
	require.NoError(t, err)
	assert.NotContains(t, token, "auth_key")

	got, err := c.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestSessionCipher_NonceIsFresh(t *testing.T) {
	c := NewSessionCipher(testKey(t))
	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSessionCipher_KeyEncodings(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		c := NewSessionCipher(enc.EncodeToString(raw))
		assert.NoError(t, c.Validate())
	}
}

func TestSessionCipher_ConfigurationError(t *testing.T) {
	testCases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not base64", "!!!not-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewSessionCipher(tc.key)
			assert.ErrorIs(t, c.Validate(), ErrConfiguration)
			_, err := c.Encrypt([]byte("x"))
			assert.ErrorIs(t, err, ErrConfiguration)
			_, err = c.Decrypt("anything")
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	var nilCipher *SessionCipher
	_, err := nilCipher.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSessionCipher_WrongKeyOrTampered(t *testing.T) {
	c := NewSessionCipher(testKey(t))
	token, err := c.Encrypt([]byte("session"))
	require.NoError(t, err)

	other := NewSessionCipher(testKey(t))
	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, ErrTamperedOrStaleKey)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	_, err = c.Decrypt(base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrTamperedOrStaleKey)

	_, err = c.Decrypt("short")
	assert.ErrorIs(t, err, ErrTamperedOrStaleKey)
	_, err = c.Decrypt(strings.Repeat("*", 80))
	assert.ErrorIs(t, err, ErrTamperedOrStaleKey)
}
