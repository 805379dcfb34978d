package examsso

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// refreshTokenBytes gives 256 bits of entropy per refresh token.
const refreshTokenBytes = 32

// HashToken returns the hex SHA-256 of an opaque token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenFingerprint is a short, log-safe reference to a token hash.
func TokenFingerprint(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}

	return hash
}

// GenerateOpaqueToken returns a URL-safe random token.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
