package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper shields the session and cache paths from a flapping Redis.
// Only the commands those paths use are wrapped.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
}

func NewRedisWrapper(client *redis.Client, settings Settings, logger *zap.Logger) *RedisWrapper {
	return &RedisWrapper{
		client: client,
		cb:     New("redis", settings, logger),
	}
}

func (rw *RedisWrapper) Ping(ctx context.Context) error {
	return rw.cb.Execute(ctx, func() error {
		return rw.client.Ping(ctx).Err()
	})
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := rw.cb.Execute(ctx, func() error {
		b, err := rw.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// a miss is not a backend failure
			data = nil
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, redis.Nil
	}
	return data, nil
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rw.cb.Execute(ctx, func() error {
		return rw.client.Set(ctx, key, value, ttl).Err()
	})
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	return rw.cb.Execute(ctx, func() error {
		return rw.client.Del(ctx, keys...).Err()
	})
}

func (rw *RedisWrapper) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return rw.cb.Execute(ctx, func() error {
		return rw.client.Expire(ctx, key, ttl).Err()
	})
}

// Scan collects every key matching pattern. The iteration runs as one
// breaker call so a mid-scan outage counts once.
func (rw *RedisWrapper) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := rw.cb.Execute(ctx, func() error {
		iter := rw.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (rw *RedisWrapper) State() State { return rw.cb.State() }

func (rw *RedisWrapper) Close() error { return rw.client.Close() }
