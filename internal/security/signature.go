// Package security holds the gateway's cryptographic primitives: session sealing and callback signing.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the callback body signature.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// Signer computes HMAC-SHA-256 signatures over callback bodies. An empty secret disables signing.
type Signer struct {
	secret []byte
}

// NewSigner trims secret; whitespace-only secrets disable signing.
func NewSigner(secret string) *Signer {
	s := strings.TrimSpace(secret)
	if s == "" {
		return &Signer{}
	}
	return &Signer{secret: []byte(s)}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns "sha256=<hex>" for body, or "" when signing is disabled.
func (s *Signer) Sign(body []byte) string {
	if !s.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a header value against body in constant time.
func (s *Signer) Verify(body []byte, header string) bool {
	if !s.Enabled() {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(strings.TrimSpace(header)))
}
