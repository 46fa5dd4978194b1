package github

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores installation access tokens until they near expiry.
type TokenCache interface {
	Get(ctx context.Context, installationID int64) (string, bool)
	Set(ctx context.Context, installationID int64, token string, ttl time.Duration) error
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenCache keeps tokens in process memory.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[int64]cachedToken
	now    func() time.Time
}

// NewMemoryTokenCache returns an empty in-process cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[int64]cachedToken), now: time.Now}
}

func (c *MemoryTokenCache) Get(ctx context.Context, installationID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tokens[installationID]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.tokens, installationID)
		return "", false
	}
	return entry.token, true
}

func (c *MemoryTokenCache) Set(ctx context.Context, installationID int64, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[installationID] = cachedToken{token: token, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisTokenCache shares tokens between API replicas.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenCache builds a cache on top of an existing redis client.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, prefix: "github:installation_token:"}
}

func (c *RedisTokenCache) key(installationID int64) string {
	return c.prefix + strconv.FormatInt(installationID, 10)
}

func (c *RedisTokenCache) Get(ctx context.Context, installationID int64) (string, bool) {
	token, err := c.client.Get(ctx, c.key(installationID)).Result()
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

func (c *RedisTokenCache) Set(ctx context.Context, installationID int64, token string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(installationID), token, ttl).Err()
}
