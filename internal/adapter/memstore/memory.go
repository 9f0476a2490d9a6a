package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// MemoryVectorStore keeps vectors, texts and metadata in memory and searches
// them by brute-force cosine distance. The bolt-backed store uses it as its
// search index.
type MemoryVectorStore struct {
	mu        sync.RWMutex
	dimension int
	items     map[string]port.VectorItem
}

// NewMemoryVectorStore creates an empty store. A dimension of 0 accepts the
// dimension of the first upserted vector.
func NewMemoryVectorStore(dimension int) *MemoryVectorStore {
	return &MemoryVectorStore{
		dimension: dimension,
		items:     make(map[string]port.VectorItem),
	}
}

func (s *MemoryVectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(items); err != nil {
		return err
	}
	for _, item := range items {
		if s.dimension == 0 {
			s.dimension = len(item.Vector)
		}
		s.items[item.ID] = item
	}
	return nil
}

// Validate reports whether items can be upserted without a dimension mismatch.
func (s *MemoryVectorStore) Validate(items []port.VectorItem) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validate(items)
}

func (s *MemoryVectorStore) validate(items []port.VectorItem) error {
	dim := s.dimension
	for _, item := range items {
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(item.Vector))
		}
	}
	return nil
}

func (s *MemoryVectorStore) checkDimension(n int) error {
	if s.dimension != 0 && n != s.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, n)
	}
	return nil
}

// Query finds the topK nearest vectors by cosine distance. Ties are broken
// by id so results are stable across calls.
func (s *MemoryVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *domain.FolderFilter) ([]port.VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) == 0 {
		return nil, nil
	}
	if err := s.checkDimension(len(vector)); err != nil {
		return nil, err
	}

	results := make([]port.VectorResult, 0, len(s.items))
	for _, item := range s.items {
		if !filter.Match(item.Metadata) {
			continue
		}
		results = append(results, port.VectorResult{
			ID:       item.ID,
			Text:     item.Text,
			Distance: 1 - cosineSimilarity(vector, item.Vector),
			Metadata: item.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes the given ids, plus every entry matching filter when the
// filter is set.
func (s *MemoryVectorStore) Delete(ctx context.Context, ids []string, filter *domain.FolderFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.matchingIDs(ids, filter) {
		delete(s.items, id)
	}
	return nil
}

// MatchingIDs returns the ids Delete would remove.
func (s *MemoryVectorStore) MatchingIDs(ids []string, filter *domain.FolderFilter) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchingIDs(ids, filter)
}

func (s *MemoryVectorStore) matchingIDs(ids []string, filter *domain.FolderFilter) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			out = append(out, id)
		}
	}
	if !filter.IsZero() {
		for id, item := range s.items {
			if filter.Match(item.Metadata) {
				out = append(out, id)
			}
		}
	}
	return out
}

// List returns up to limit entries matching filter, ordered by id.
func (s *MemoryVectorStore) List(ctx context.Context, filter *domain.FolderFilter, limit int) ([]port.VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id, item := range s.items {
		if filter.Match(item.Metadata) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]port.VectorResult, len(ids))
	for i, id := range ids {
		item := s.items[id]
		results[i] = port.VectorResult{ID: id, Text: item.Text, Metadata: item.Metadata}
	}
	return results, nil
}

// Folders returns the distinct folders of all stored chunks, sorted.
func (s *MemoryVectorStore) Folders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	seen := make(map[string]struct{})
	for id, item := range s.items {
		if f := domain.ChunkFromMetadata(id, "", item.Metadata).Folder; f != "" {
			seen[f] = struct{}{}
		}
	}
	s.mu.RUnlock()

	folders := make([]string, 0, len(seen))
	for f := range seen {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders, nil
}

func (s *MemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

func (s *MemoryVectorStore) Close() error {
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
