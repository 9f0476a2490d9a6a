package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/logging"
)

// cacheRecord is the persisted form of a cache entry. Query embeddings are
// not stored; they are recomputed lazily after a restart.
type cacheRecord struct {
	Query       string        `json:"query_text"`
	Response    string        `json:"response"`
	Sources     []string      `json:"sources,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	LastAccess  time.Time     `json:"last_access"`
	AccessCount int           `json:"access_count"`
	Confidence  float64       `json:"confidence"`
	CostSaved   float64       `json:"cost_saved"`
	TTL         time.Duration `json:"ttl"`
}

func encodeCacheEntry(e domain.CacheEntry) ([]byte, error) {
	return json.Marshal(cacheRecord{
		Query:       e.Query,
		Response:    e.Response,
		Sources:     e.Sources,
		CreatedAt:   e.CreatedAt,
		LastAccess:  e.LastAccess,
		AccessCount: e.AccessCount,
		Confidence:  e.Confidence,
		CostSaved:   e.CostSaved,
		TTL:         e.TTL,
	})
}

func decodeCacheEntry(key string, data []byte) (domain.CacheEntry, error) {
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CacheEntry{}, domain.NewProviderError(domain.KindCacheCorruption, "cache", err)
	}
	if rec.Query == "" || rec.Response == "" || rec.CreatedAt.IsZero() {
		return domain.CacheEntry{}, domain.NewProviderError(domain.KindCacheCorruption, "cache",
			fmt.Errorf("entry %s is incomplete", key))
	}
	return domain.CacheEntry{
		Key:         key,
		Query:       rec.Query,
		Response:    rec.Response,
		Sources:     rec.Sources,
		CreatedAt:   rec.CreatedAt,
		LastAccess:  rec.LastAccess,
		AccessCount: rec.AccessCount,
		Confidence:  rec.Confidence,
		CostSaved:   rec.CostSaved,
		TTL:         rec.TTL,
	}, nil
}

// BoltCacheStore persists cache entries in the cache bucket.
type BoltCacheStore struct {
	db     *DB
	logger *zap.Logger
}

func NewBoltCacheStore(db *DB, logger *zap.Logger) *BoltCacheStore {
	return &BoltCacheStore{db: db, logger: logging.OrNop(logger)}
}

// Load returns every readable entry. Corrupt entries are deleted.
func (s *BoltCacheStore) Load(ctx context.Context) ([]domain.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []domain.CacheEntry
	var corrupt []string
	err := s.db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).ForEach(func(k, v []byte) error {
			entry, err := decodeCacheEntry(string(k), v)
			if err != nil {
				corrupt = append(corrupt, string(k))
				return nil
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(corrupt) > 0 {
		s.logger.Warn("dropping corrupt cache entries", zap.Int("count", len(corrupt)))
		if err := s.Delete(ctx, corrupt); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *BoltCacheStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeCacheEntry(entry)
	if err != nil {
		return err
	}
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(entry.Key), data)
	})
}

func (s *BoltCacheStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCache)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltCacheStore) Clear(ctx context.Context) error {
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		return clearBucket(tx, bucketCache)
	})
}
