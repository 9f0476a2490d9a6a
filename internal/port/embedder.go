package port

import (
	"context"

	"docqa/internal/domain"
)

// Embedder generates L2-normalized vector embeddings for text.
type Embedder interface {
	// EmbedDocument embeds a passage for storage.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery embeds a search query. Some models use a different prefix
	// for queries than for documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores and searches embedding vectors together with the chunk
// text and its provenance metadata.
type VectorStore interface {
	// Upsert adds or updates vectors in the store.
	Upsert(ctx context.Context, items []VectorItem) error

	// Query returns the topK nearest vectors, closest first, restricted to
	// entries matching filter when it is non-nil.
	Query(ctx context.Context, vector []float32, topK int, filter *domain.FolderFilter) ([]VectorResult, error)

	// Delete removes vectors by id, or every vector matching filter.
	Delete(ctx context.Context, ids []string, filter *domain.FolderFilter) error

	// List returns up to limit stored entries matching filter without scoring.
	List(ctx context.Context, filter *domain.FolderFilter, limit int) ([]VectorResult, error)

	// Count returns the number of vectors in the store.
	Count(ctx context.Context) (int, error)
}

// VectorItem represents a vector to be stored.
type VectorItem struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// VectorResult represents a search result.
type VectorResult struct {
	ID       string
	Text     string
	Distance float64 // cosine distance, lower is closer
	Metadata map[string]string
}

// FolderLister is implemented by vector stores that can report every
// distinct folder without listing chunks.
type FolderLister interface {
	Folders(ctx context.Context) ([]string, error)
}
