package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// APIKeyPrefix marks keys issued by this service so leaked keys can be
	// recognized in scanning tools.
	APIKeyPrefix = "cm_"

	opaqueTokenBytes = 32
	apiKeyBytes      = 32
)

// GenerateOpaqueToken returns a URL-safe random token with 256 bits of
// entropy. Used for refresh tokens, which are stored server-side as a hash.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAPIKey returns a new plaintext API key and the hash to persist.
// The plaintext is shown to the caller exactly once.
func GenerateAPIKey() (plaintext, hash string, err error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate api key: %w", err)
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex SHA-256 digest of a token. Opaque tokens carry
// enough entropy that an unsalted hash cannot be reversed by brute force.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
