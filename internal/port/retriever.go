package port

import (
	"context"

	"docqa/internal/domain"
)

// Retriever runs one retrieval attempt with explicit strategy parameters.
type Retriever interface {
	Search(ctx context.Context, req domain.SearchRequest) domain.SearchOutcome
}

// LiveSearcher searches the live document corpus by name.
type LiveSearcher interface {
	SearchLive(ctx context.Context, term string) ([]domain.LiveResult, error)
}

// CacheStore persists query cache entries for warm restarts. Embeddings are
// not persisted.
type CacheStore interface {
	Load(ctx context.Context) ([]domain.CacheEntry, error)
	Put(ctx context.Context, entry domain.CacheEntry) error
	Delete(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
}
