// Package cache provides a small TTL cache interface backed by Redis.
// The market service puts it in front of its price provider; a cache outage
// degrades to provider calls, it never fails a request on its own.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = fmt.Errorf("cache: miss")

type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get unmarshals the cached JSON into dest. Returns ErrMiss when absent.
	Get(ctx context.Context, key string, dest any) error
	GenerateKey(operation, key string) string
}

type redisCache struct {
	client      *redis.Client
	serviceName string
}

func NewRedisCache(addr, serviceName string) Cache {
	return &redisCache{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		serviceName: serviceName,
	}
}

func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %q: %w", key, err)
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string, dest any) error {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (r *redisCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}
