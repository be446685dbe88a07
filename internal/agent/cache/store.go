package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier names a cache level.
type Tier int

const (
	TierL1 Tier = iota + 1
	TierL2
)

func (t Tier) String() string {
	switch t {
	case TierL1:
		return "l1"
	case TierL2:
		return "l2"
	default:
		return "unknown"
	}
}

// Entry is a stored value and how long it has left. A zero Remaining means
// the entry carries no expiry.
type Entry struct {
	Value     []byte
	Remaining time.Duration
}

// Store is the shared L2 tier.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisStore keeps L2 entries in Redis under a key prefix.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get reads the value and its remaining TTL in one round trip.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		getCmd = p.Get(ctx, s.prefix+key)
		ttlCmd = p.PTTL(ctx, s.prefix+key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, err
	}

	value, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	ttl := ttlCmd.Val()
	switch {
	case ttl == -2:
		// expired between GET and PTTL
		return Entry{}, false, nil
	case ttl < 0:
		ttl = 0
	}
	return Entry{Value: value, Remaining: ttl}, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
