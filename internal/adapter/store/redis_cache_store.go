package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/logging"
)

// RedisCacheStore persists cache entries as fields of a single Redis hash so
// several processes can share a warm cache.
type RedisCacheStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

func NewRedisCacheStore(client *redis.Client, key string, logger *zap.Logger) *RedisCacheStore {
	if key == "" {
		key = "docqa:cache"
	}
	return &RedisCacheStore{client: client, key: key, logger: logging.OrNop(logger)}
}

// Load returns every readable entry. Corrupt fields are deleted.
func (s *RedisCacheStore) Load(ctx context.Context) ([]domain.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load cache from redis: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(fields))
	var corrupt []string
	for k, v := range fields {
		entry, err := decodeCacheEntry(k, []byte(v))
		if err != nil {
			corrupt = append(corrupt, k)
			continue
		}
		entries = append(entries, entry)
	}
	if len(corrupt) > 0 {
		s.logger.Warn("dropping corrupt cache entries", zap.Int("count", len(corrupt)))
		if err := s.Delete(ctx, corrupt); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *RedisCacheStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	data, err := encodeCacheEntry(entry)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, entry.Key, data).Err()
}

func (s *RedisCacheStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.HDel(ctx, s.key, keys...).Err()
}

func (s *RedisCacheStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
