package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a token value for use as a cache key, so that raw
// credentials never appear in cache storage or in key listings.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}
