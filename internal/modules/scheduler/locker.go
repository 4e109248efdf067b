package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"prodreport/internal/pkg/lock"
)

const runLockKey = "allocation:run-lock"

// RedisLocker backs RunLocker with a redis SETNX token. It survives a
// crashed scheduler process through the TTL, unlike the is_running flag.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	lk, ok, err := lock.Acquire(ctx, l.client, runLockKey, ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	release := func() {
		_ = lock.Release(context.Background(), l.client, lk)
	}
	return release, true, nil
}
