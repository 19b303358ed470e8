package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// tokenValueRawSize is the entropy of an opaque refresh value in bytes.
// 48 bytes gives 384 bits; value collisions across live rows are treated
// as impossible.
const tokenValueRawSize = 48

// NewTokenValue returns a fresh opaque refresh-token value: 48 random
// bytes, base64url without padding.
func NewTokenValue() (string, error) {
	var raw [tokenValueRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashTokenValue maps a presented opaque value to its storage digest.
// Rows are keyed by this digest so the plaintext secret never reaches
// the store.
func HashTokenValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// EncodeHash renders a value digest as a compact Redis key segment.
func EncodeHash(hash [32]byte) string {
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
