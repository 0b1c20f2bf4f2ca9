// Package b64url provides a padding-free base64url codec. internal/idgen
// encodes its opaque identifiers with it; JWT and JWK encoding is done by
// go-jose, and the PKCE check in iam calls encoding/base64 directly.
package b64url

import "encoding/base64"

// Encode returns the unpadded base64url encoding of data.
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// EncodeString is a convenience wrapper for string input.
func EncodeString(s string) string {
	return Encode([]byte(s))
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
