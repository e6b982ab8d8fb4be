package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idem:"

// RedisIdempotencyGuard は SETNX で冪等キーを確保する。
type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client *redis.Client, ttl time.Duration) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{client: client, ttl: ttl}
}

func (g *RedisIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// NoopIdempotencyGuard は Redis なしの構成で使う。
// DB の一意制約だけで重複を防ぐ。
type NoopIdempotencyGuard struct{}

func (NoopIdempotencyGuard) Claim(context.Context, string) (bool, error) { return true, nil }
func (NoopIdempotencyGuard) Release(context.Context, string) error       { return nil }
