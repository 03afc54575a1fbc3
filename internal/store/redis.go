package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rahullalw/smart-ev-analytics/internal/config"
)

// NewRedisClient opens the Redis connection shared by the durable
// per-stream queues (internal/queue/redisqueue) and the operator
// auth cache (internal/auth) — one pool, two unrelated keyspaces.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis: %w", err)
	}

	return client, nil
}
