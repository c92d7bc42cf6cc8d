package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOpaqueToken(t *testing.T) {
	token, err := GenerateOpaqueToken()

	require.NoError(t, err)
	// 32 bytes in unpadded base64url.
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	other, err := GenerateOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateAPIKey(t *testing.T) {
	plaintext, hash, err := GenerateAPIKey()

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, APIKeyPrefix))
	// Prefix plus 32 bytes in hex.
	assert.Len(t, plaintext, len(APIKeyPrefix)+64)
	assert.Equal(t, HashToken(plaintext), hash)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("token"), HashToken("token"))
	assert.NotEqual(t, HashToken("token"), HashToken("other"))
	assert.Len(t, HashToken("token"), 64)
}
