// Package idgen generates high-entropy opaque identifiers for
// authorization codes, refresh tokens, request IDs, and the random suffix of
// GDT exchange-file names.
//
// Grounded on storage.NewID/newSecureID from the teacher: crypto/rand bytes,
// unpadded base64url encoding. The bytes are encoded as they come, so a
// result is not guaranteed to contain a non-digit character.
package idgen

import (
	"crypto/rand"
	"io"

	"github.com/yanniks/health-companion-prototype/internal/b64url"
)

// Opaque returns a cryptographically random opaque token of n raw bytes,
// base64url-encoded without padding.
func Opaque(n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic("idgen: failed to read random bytes: " + err.Error())
	}
	return b64url.Encode(buf)
}

// AuthCode returns a new authorization code value.
func AuthCode() string { return Opaque(32) }

// RefreshToken returns a new refresh token value.
func RefreshToken() string { return Opaque(32) }

// RequestID returns a short value suitable for request correlation.
func RequestID() string { return Opaque(12) }
