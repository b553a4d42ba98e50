package oauth2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRedirectURI(t *testing.T) {
	for _, uri := range []string{
		"https://app.example.com/callback",
		"http://localhost:3000/cb",
		"myapp://oauth/return",
		"https://app.example.com/cb?keep=query",
	} {
		normalized, err := ValidateRedirectURI(uri)
		require.NoError(t, err, uri)
		assert.Equal(t, uri, normalized)
	}
}

func TestValidateRedirectURIRejections(t *testing.T) {
	for name, uri := range map[string]string{
		"empty":          "",
		"relative path":  "/callback",
		"no scheme":      "app.example.com/callback",
		"fragment":       "https://app.example.com/cb#section",
		"empty fragment": "https://app.example.com/cb#",
		"malformed":      "https://app.example.com/%zz",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateRedirectURI(uri)
			assert.Error(t, err)
		})
	}
}

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewOpaqueToken()
		assert.Len(t, token, 43) // 32 bytes, base64url without padding
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSecretsEqual(t *testing.T) {
	assert.True(t, SecretsEqual("abc", "abc"))
	assert.False(t, SecretsEqual("abc", "abd"))
	assert.False(t, SecretsEqual("abc", "abcd"))
	assert.True(t, SecretsEqual("", ""))
}
