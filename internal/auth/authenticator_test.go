package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/rahullalw/smart-ev-analytics/internal/config"
)

// unreachableRedisClient points at a port nothing is listening on, so
// every call fails fast instead of hanging — enough to exercise the
// static-key and in-memory-cache tiers without a real Redis instance.
func unreachableRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
}

func TestValidate_StaticKeyAlwaysPasses(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: []string{"static-key"}, AuthCacheTTLSeconds: 300}
	a := NewAuthenticator(cfg, unreachableRedisClient())

	assert.True(t, a.Validate(context.Background(), "static-key"))
}

func TestValidate_UnknownKeyWithUnreachableRedisFails(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: nil, AuthCacheTTLSeconds: 300}
	a := NewAuthenticator(cfg, unreachableRedisClient())

	assert.False(t, a.Validate(context.Background(), "unknown-key"))
}

func TestValidate_CacheEntryIsReusedWithoutHittingRedisAgain(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: nil, AuthCacheTTLSeconds: 300}
	a := NewAuthenticator(cfg, unreachableRedisClient())

	a.localCache.Store("cached-key", cacheEntry{
		operatorID: "op-1",
		expiresAt:  time.Now().Add(time.Minute),
	})

	assert.True(t, a.Validate(context.Background(), "cached-key"))
}

func TestValidate_ExpiredCacheEntryFallsThroughToRedis(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: nil, AuthCacheTTLSeconds: 300}
	a := NewAuthenticator(cfg, unreachableRedisClient())

	a.localCache.Store("stale-key", cacheEntry{
		operatorID: "op-1",
		expiresAt:  time.Now().Add(-time.Minute),
	})

	assert.False(t, a.Validate(context.Background(), "stale-key"))
	_, stillCached := a.localCache.Load("stale-key")
	assert.False(t, stillCached, "expired entries are evicted on lookup")
}
