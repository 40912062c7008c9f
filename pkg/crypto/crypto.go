package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor applied to every stored password.
const PasswordCost = 10

// opaqueTokenHalf is the size in bytes of each random half of an opaque token (128 bits).
const opaqueTokenHalf = 16

// dummyHash is compared against when no stored hash exists so that unknown
// accounts cost the same bcrypt work as known ones.
var dummyHash = mustHash("vocabquiz-timing-equaliser")

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
// An empty hash is still run through bcrypt against a fixed dummy hash.
func VerifyPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateOpaqueToken concatenates two independent 128-bit random values and
// returns them hex encoded (64 characters).
func GenerateOpaqueToken() (string, error) {
	first := make([]byte, opaqueTokenHalf)
	if _, err := rand.Read(first); err != nil {
		return "", err
	}
	second := make([]byte, opaqueTokenHalf)
	if _, err := rand.Read(second); err != nil {
		return "", err
	}
	return hex.EncodeToString(first) + hex.EncodeToString(second), nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of value.
func SHA256Hex(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])
}

// ConstantTimeEqual reports whether a and b are equal without leaking the
// position of the first difference. Empty inputs never match.
func ConstantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func mustHash(value string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(value), PasswordCost)
	if err != nil {
		panic(err)
	}
	return hash
}
