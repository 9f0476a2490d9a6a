package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"docqa/internal/adapter/memstore"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// BoltVectorStore implements VectorStore using BoltDB for persistence.
// Searches run against an in-memory copy loaded at open.
type BoltVectorStore struct {
	db    *DB
	mu    sync.Mutex
	index *memstore.MemoryVectorStore
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Text     string            `json:"t"`
	Metadata map[string]string `json:"m,omitempty"`
}

// NewBoltVectorStore creates a new BoltDB-backed vector store and loads the
// existing vectors. Entries that fail to decode are skipped.
func NewBoltVectorStore(db *DB, dimension int) (*BoltVectorStore, error) {
	s := &BoltVectorStore{
		db:    db,
		index: memstore.NewMemoryVectorStore(dimension),
	}

	var items []port.VectorItem
	err := db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil
			}
			items = append(items, port.VectorItem{
				ID:       string(k),
				Vector:   stored.Vector,
				Text:     stored.Text,
				Metadata: stored.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	if err := s.index.Upsert(context.Background(), items); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

// Upsert writes items to bolt in one transaction, then to the in-memory index.
func (s *BoltVectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Validate(items); err != nil {
		return err
	}

	err := s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, item := range items {
			data, err := json.Marshal(storedVector{
				Vector:   item.Vector,
				Text:     item.Text,
				Metadata: item.Metadata,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, items)
}

func (s *BoltVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *domain.FolderFilter) ([]port.VectorResult, error) {
	return s.index.Query(ctx, vector, topK, filter)
}

// Delete removes vectors by id or by folder filter from disk and memory.
func (s *BoltVectorStore) Delete(ctx context.Context, ids []string, filter *domain.FolderFilter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := s.index.MatchingIDs(ids, filter)
	err := s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, id := range targets {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.index.Delete(ctx, targets, nil)
}

func (s *BoltVectorStore) List(ctx context.Context, filter *domain.FolderFilter, limit int) ([]port.VectorResult, error) {
	return s.index.List(ctx, filter, limit)
}

func (s *BoltVectorStore) Folders(ctx context.Context) ([]string, error) {
	return s.index.Folders(ctx)
}

func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}
