package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Storage on a Redis keyspace. Every blob lives
// under keyPrefix so a SCAN never walks unrelated keys (sessions,
// embedding cache) in a shared instance.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: "blob:",
		logger:    logger,
	}
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	pattern := s.keyPrefix + prefix + "*"
	var infos []BlobInfo
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.keyPrefix)
		size, err := s.client.StrLen(ctx, iter.Val()).Result()
		if err != nil {
			s.logger.Warn("Failed to stat blob during list",
				zap.String("key", key), zap.Error(err))
			continue
		}
		infos = append(infos, BlobInfo{Key: key, Size: size, UpdatedAt: time.Now()})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan blobs with prefix %q: %w", prefix, err)
	}
	return infos, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("delete blob %s: %w", key, err)
	}
	return n > 0, nil
}
