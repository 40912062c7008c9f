package app

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// MinJWTSecretBytes is the smallest HS256 key considered strong.
const MinJWTSecretBytes = 32

// KeyByteLength returns the decoded byte length of a key string.
// It supports hex, base64, and raw string encodings.
func KeyByteLength(value string) int {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return len(decoded)
		}
	}

	// Support both standard and raw base64 encodings
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return len(decoded)
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return len(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(v); err == nil {
		return len(decoded)
	}

	return len(v)
}

// WeakJWTSecret reports whether secret carries fewer than MinJWTSecretBytes of key material.
func WeakJWTSecret(secret string) bool {
	return KeyByteLength(secret) < MinJWTSecretBytes
}
