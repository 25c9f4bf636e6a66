package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrConfiguration is returned when SESSION_ENC_KEY is unset or malformed.
	ErrConfiguration = errors.New("session key is not set or is not a base64-encoded 32-byte key")
	// ErrTamperedOrStaleKey is returned when a stored session cannot be opened with the current key.
	// Callers must treat it as "no usable session", never as a transient failure.
	ErrTamperedOrStaleKey = errors.New("cannot decrypt session: tampered data or rotated key")
)

// SessionCipher seals opaque session blobs with XChaCha20-Poly1305 under a process-wide key.
// A cipher built from a bad key is still usable as a value: every call fails with ErrConfiguration.
type SessionCipher struct {
	key    []byte
	keyErr error
}

// NewSessionCipher parses a base64 (standard or URL, padded or raw) 32-byte key.
func NewSessionCipher(encodedKey string) *SessionCipher {
	key, err := decodeKey(encodedKey)
	return &SessionCipher{key: key, keyErr: err}
}

// Validate reports whether the configured key is usable.
func (c *SessionCipher) Validate() error {
	return c.keyErr
}

// Encrypt returns base64url(nonce || ciphertext).
func (c *SessionCipher) Encrypt(plain []byte) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session cipher: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any decoding or authentication failure is ErrTamperedOrStaleKey.
func (c *SessionCipher) Decrypt(token string) ([]byte, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrTamperedOrStaleKey
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrTamperedOrStaleKey
	}
	return plain, nil
}

func (c *SessionCipher) aead() (cipher.AEAD, error) {
	if c == nil || c.keyErr != nil {
		return nil, ErrConfiguration
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, ErrConfiguration
	}
	return aead, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrConfiguration
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
	}
	return nil, ErrConfiguration
}

// GenerateSessionKey returns a fresh base64url key suitable for SESSION_ENC_KEY.
func GenerateSessionKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}
