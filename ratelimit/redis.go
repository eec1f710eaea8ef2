package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// hitScript increments the key and starts its window on the first hit.
// A key that lost its TTL gets a fresh one so it cannot block forever.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares buckets between gatekeeper instances
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("[NewRedisStore] redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error) {
	res, err := hitScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Bucket{}, fmt.Errorf("[RedisStore Hit] %w", err)
	}
	if len(res) != 2 {
		return Bucket{}, fmt.Errorf("[RedisStore Hit] unexpected script result %v", res)
	}
	return Bucket{
		Count:   res[0],
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, now time.Time) (Bucket, bool, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Bucket{}, false, fmt.Errorf("[RedisStore Peek] %w", err)
	}

	count, err := get.Int64()
	if err == redis.Nil {
		return Bucket{}, false, nil
	}
	if err != nil {
		return Bucket{}, false, fmt.Errorf("[RedisStore Peek] %w", err)
	}
	return Bucket{Count: count, ResetAt: now.Add(ttl.Val())}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("[RedisStore Reset] %w", err)
	}
	return nil
}
