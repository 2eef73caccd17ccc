package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndSwapScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if ARGV[1] == "absent" then
		if cur then
			return 0
		end
	elseif cur ~= ARGV[2] then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[3])
	return 1
`)

// RedisCache implements Cache on a shared Redis client.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced with keyPrefix.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "stocksync:cache"
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + ":" + k
}

// Get retrieves a value by key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value. A zero ttl keeps the key until deleted.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Delete removes a value by key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// CompareAndSwap atomically replaces the value when it still equals prev.
func (c *RedisCache) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	mode := "match"
	if prev == nil {
		mode = "absent"
	}
	swapped, err := compareAndSwapScript.Run(ctx, c.client, []string{c.key(key)}, mode, prev, next).Int()
	if err != nil {
		return false, err
	}
	return swapped == 1, nil
}

var _ Cache = (*RedisCache)(nil)
