package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"support-agent/internal/common/config"
)

// RedisClient holds the shared L2 cache connection.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis creates a Redis client. The connection is lazy; call Ping to
// verify reachability.
func NewRedis(cfg config.RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     20,
		MinIdleConns: 5,
	})
	return &RedisClient{Client: rdb}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// NewRedisFromClient wraps an existing client, for tests and callers that
// manage the connection themselves.
func NewRedisFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{Client: client}
}
