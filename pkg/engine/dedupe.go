package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers deliveries that were already forwarded.
type Deduper interface {
	// Seen marks key as forwarded and reports whether it already was.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget drops key so that a redelivery is forwarded again.
	Forget(ctx context.Context, key string) error
	Close() error
}

// RedisDeduper tracks delivery ids with SETNX and a TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(addr string, ttl time.Duration) (*RedisDeduper, error) {
	if addr == "" {
		return nil, fmt.Errorf("dedupe redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisDeduper{client: rdb, ttl: ttl, prefix: "autotest:delivery:"}, nil
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UnixMilli(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !fresh, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
