package cache

import (
	"context"
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/obs"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const etaKeyPrefix = "eta:"

// RedisETACache stores travel times with a TTL so entries age out as
// traffic conditions change.
type RedisETACache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisETACache(client *redis.Client, ttl time.Duration) *RedisETACache {
	return &RedisETACache{client: client, ttl: ttl}
}

// OpenRedis parses a redis:// URL and verifies connectivity.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisETACache) Get(ctx context.Context, origin, destination domain.LatLng) (_ domain.ETA, _ bool, err error) {
	defer obs.Time(ctx, "eta.cache.Get")(&err)

	v, err := r.client.Get(ctx, redisETAKey(origin, destination)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ETA{}, false, nil
	}
	if err != nil {
		return domain.ETA{}, false, fmt.Errorf("get eta cache: %w", err)
	}

	seconds, err := strconv.Atoi(v)
	if err != nil {
		return domain.ETA{}, false, fmt.Errorf("get eta cache: parse %q: %w", v, err)
	}

	return domain.ETA{DurationSeconds: seconds, DurationText: domain.FormatDuration(seconds)}, true, nil
}

func (r *RedisETACache) Put(ctx context.Context, origin, destination domain.LatLng, eta domain.ETA) error {
	err := r.client.Set(ctx, redisETAKey(origin, destination), eta.DurationSeconds, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("insert eta cache: %w", err)
	}
	return nil
}

func redisETAKey(origin, destination domain.LatLng) string {
	return etaKeyPrefix + etaKey(origin) + "|" + etaKey(destination)
}
