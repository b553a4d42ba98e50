// Package redis provides a Redis-backed token cache for deployments with
// more than one server in front of the same stores.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ohmage/oauth2/cache"
)

// TokenCache implements cache.TokenCache on Redis. Keys are hashed token
// values under a configurable prefix; entries expire with the token.
type TokenCache struct {
	client *redis.Client
	prefix string
}

// NewTokenCache creates a Redis token cache.
func NewTokenCache(client *redis.Client, prefix string) *TokenCache {
	return &TokenCache{
		client: client,
		prefix: prefix,
	}
}

func (r *TokenCache) redisKey(accessToken string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(accessToken))
}

// Set implements cache.TokenCache.
func (r *TokenCache) Set(ctx context.Context, entry *cache.TokenEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal token entry: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(entry.AccessToken), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token in Redis: %w", err)
	}
	return nil
}

// Get implements cache.TokenCache. Errors are treated as cache misses so
// that Redis outages degrade to store lookups rather than failures.
func (r *TokenCache) Get(ctx context.Context, accessToken string) (*cache.TokenEntry, bool) {
	payload, err := r.client.Get(ctx, r.redisKey(accessToken)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Redis token cache lookup failed")
		}
		return nil, false
	}

	var entry cache.TokenEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		log.Warn().Err(err).Msg("Corrupt token cache entry; dropping")
		_ = r.client.Del(ctx, r.redisKey(accessToken)).Err()
		return nil, false
	}
	return &entry, true
}

// Delete implements cache.TokenCache.
func (r *TokenCache) Delete(ctx context.Context, accessToken string) error {
	return r.client.Del(ctx, r.redisKey(accessToken)).Err()
}
