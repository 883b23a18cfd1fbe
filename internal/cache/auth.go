package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lensai/lensai/internal/model"
)

const (
	authCachePrefix = "auth:ctx:"
	// authKeyIndexPrefix maps a key ID to the cache entries derived from it.
	authKeyIndexPrefix = "auth:key:"
	authCacheTTL       = 5 * time.Minute
)

// CachedAuthContext is the JSON form of an auth context stored in Redis.
type CachedAuthContext struct {
	KeyID     string     `json:"key_id"`
	KeyPrefix string     `json:"key_prefix"`
	ProjectID string     `json:"project_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GetAuthContext returns the cached context for cacheKey, or nil on a miss.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted entry counts as a miss.
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		KeyID:     cached.KeyID,
		KeyPrefix: cached.KeyPrefix,
		ProjectID: cached.ProjectID,
		ExpiresAt: cached.ExpiresAt,
	}, nil
}

// SetAuthContext caches an auth context and records it under the key ID
// so InvalidateKey can find it. Entries never outlive the key's expiry.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	ttl := authContextTTL(auth, time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(CachedAuthContext{
		KeyID:     auth.KeyID,
		KeyPrefix: auth.KeyPrefix,
		ProjectID: auth.ProjectID,
		ExpiresAt: auth.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	indexKey := authKeyIndexPrefix + auth.KeyID

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authCachePrefix+cacheKey, data, ttl)
	pipe.SAdd(ctx, indexKey, cacheKey)
	pipe.Expire(ctx, indexKey, authCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}
	return nil
}

// authContextTTL caps authCacheTTL at the time left before the key expires.
func authContextTTL(auth *model.AuthContext, now time.Time) time.Duration {
	if auth.ExpiresAt == nil {
		return authCacheTTL
	}
	return min(authCacheTTL, auth.ExpiresAt.Sub(now))
}

// InvalidateKey drops every cached context for a key. Called on revocation.
func (c *Cache) InvalidateKey(ctx context.Context, keyID string) error {
	indexKey := authKeyIndexPrefix + keyID

	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("read auth index: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, authCachePrefix+m)
	}
	keys = append(keys, indexKey)

	return c.client.Del(ctx, keys...).Err()
}
