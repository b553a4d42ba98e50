package oauth2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// NewOpaqueToken returns a fresh unguessable credential value, used for
// authorization codes and for access and refresh tokens. 32 bytes of
// entropy, base64url-encoded without padding.
func NewOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewClientSecret generates a shared secret for a newly registered OAuth
// client.
func NewClientSecret() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 32)
	_, _ = rand.Read(b)

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}

	return string(b)
}

// SecretsEqual compares two shared secrets in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
