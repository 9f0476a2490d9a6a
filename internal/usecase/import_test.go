package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/memstore"
	"docqa/internal/domain"
)

const importFile = `{"text":"Q1 revenue reached 4.2 million.","source_path":"finance/q1.md","chunk_index":0,"total_chunks":2}
{"text":"Costs fell in Q1.","source_path":"finance/q1.md","chunk_index":1,"total_chunks":2,"modified_time":"2026-01-15T10:00:00Z"}

not json
{"id":"hb-0","text":"Employees receive 25 vacation days.","source_path":"hr/handbook.pdf","folder":"people"}
{"text":"","source_path":"hr/empty.pdf"}
`

func TestImport(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryVectorStore(0)
	u := NewImportUseCase(store, embedding.NewHashEmbedder(64), nil, 2, nil)

	var calls [][2]int
	result, err := u.Import(ctx, strings.NewReader(importFile), func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Records)
	assert.Equal(t, 3, result.ChunksImported)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "line 4")
	assert.Equal(t, []string{"finance/q1.md", "hr/handbook.pdf"}, result.Sources)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, calls)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := store.List(ctx, &domain.FolderFilter{Pattern: "people"}, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "hb-0", items[0].ID)

	// Re-importing the same records overwrites rather than duplicates.
	_, err = u.Import(ctx, strings.NewReader(importFile), nil)
	require.NoError(t, err)
	n, _ = store.Count(ctx)
	assert.Equal(t, 3, n)
}

type brokenEmbedder struct{ *embedding.HashEmbedder }

func (brokenEmbedder) EmbedDocument(context.Context, string) ([]float32, error) {
	return nil, domain.NewProviderError(domain.KindProviderUnavailable, "embedding", errors.New("down"))
}

func TestImport_EmbeddingFailureAborts(t *testing.T) {
	store := memstore.NewMemoryVectorStore(0)
	u := NewImportUseCase(store, brokenEmbedder{embedding.NewHashEmbedder(64)}, nil, 10, nil)
	_, err := u.Import(context.Background(), strings.NewReader(importFile), nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindProviderUnavailable, domain.KindOf(err))
}

func TestChunkRecord_Chunk(t *testing.T) {
	c, err := ChunkRecord{Text: "a", SourcePath: "x/y.md", ChunkIndex: 3}.Chunk()
	require.NoError(t, err)
	assert.Len(t, c.ID, 16)
	again, _ := ChunkRecord{Text: "a", SourcePath: "x/y.md", ChunkIndex: 3}.Chunk()
	assert.Equal(t, c.ID, again.ID)

	_, err = ChunkRecord{Text: "a"}.Chunk()
	assert.Error(t, err)
	_, err = ChunkRecord{Text: "a", SourcePath: "b", ModifiedTime: "yesterday"}.Chunk()
	assert.Error(t, err)
}
