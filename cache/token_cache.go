package cache

import (
	"context"
	"time"
)

// TokenEntry is the cached view of an access token, enough for the
// bearer middleware to authenticate a request without a store round trip.
type TokenEntry struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Scopes      []string  `json:"scopes"`
	ExpiresAt   time.Time `json:"expires_at"`
	Refreshed   bool      `json:"refreshed"`
}

// TokenCache fronts access-token lookups. Entries are advisory: a miss
// falls through to the token store, and entries expire with the token.
type TokenCache interface {
	Set(ctx context.Context, entry *TokenEntry) error
	Get(ctx context.Context, accessToken string) (*TokenEntry, bool)
	Delete(ctx context.Context, accessToken string) error
}
