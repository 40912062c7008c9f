package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UnverifiedClaims are decoded from a token without checking its signature or
// expiry. Nothing in them may be used to authorise a request. They only serve
// to locate a ledger row, whose stored owner is then trusted instead.
type UnverifiedClaims struct {
	Subject string
	JTI     string
	Type    string
}

// PeekUnverifiedClaims structurally decodes tokenString. It reports false when
// the token cannot be decoded at all.
func PeekUnverifiedClaims(tokenString string) (UnverifiedClaims, bool) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return UnverifiedClaims{}, false
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return UnverifiedClaims{}, false
	}

	return UnverifiedClaims{
		Subject: claims.Subject,
		JTI:     claims.ID,
		Type:    claims.Type,
	}, true
}
