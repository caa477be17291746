package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// MinSecretBytes is the smallest refresh secret this package will mint.
	MinSecretBytes = 48
	// DefaultSecretBytes matches the 64-byte secrets issued by earlier deployments.
	DefaultSecretBytes = 64
	// MinHMACKeyBytes is the minimum accepted HMAC key size.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher maps raw refresh secrets to their stored form.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. An empty key selects SHA-256; a non-empty key
// selects HMAC-SHA256 and must be at least MinHMACKeyBytes long.
func NewHasher(key []byte) (Hasher, error) {
	if len(key) == 0 {
		return Hasher{}, nil
	}
	if len(key) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}, nil
}

// Keyed reports whether the hasher uses HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the 64-char lowercase hex digest of secret.
func (h Hasher) Hash(secret string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, h.key)
}

// NewRefreshSecret returns n bytes from crypto/rand, base64url encoded
// without padding. n below MinSecretBytes is refused.
func NewRefreshSecret(n int) (string, error) {
	if n < MinSecretBytes {
		return "", ErrSecretTooShort
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
