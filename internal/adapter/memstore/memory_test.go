package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/port"
)

func item(id string, vec []float32, folder, path string) port.VectorItem {
	return port.VectorItem{
		ID:     id,
		Vector: vec,
		Text:   "text of " + id,
		Metadata: map[string]string{
			domain.MetaFolder:     folder,
			domain.MetaSourcePath: path,
		},
	}
}

func seed(t *testing.T) *MemoryVectorStore {
	t.Helper()
	s := NewMemoryVectorStore(2)
	err := s.Upsert(context.Background(), []port.VectorItem{
		item("a", []float32{1, 0}, "finance", "finance/q1.pdf"),
		item("b", []float32{0.9, 0.1}, "finance", "finance/q2.pdf"),
		item("c", []float32{0, 1}, "hr", "hr/handbook.pdf"),
	})
	require.NoError(t, err)
	return s
}

func TestQuery_NearestFirst(t *testing.T) {
	s := seed(t)
	results, err := s.Query(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
	assert.Equal(t, "text of a", results[0].Text)
}

func TestQuery_Filter(t *testing.T) {
	s := seed(t)
	results, err := s.Query(context.Background(), []float32{1, 0}, 10, &domain.FolderFilter{Pattern: "HR"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	s := seed(t)
	_, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, nil)
	assert.Error(t, err)

	err = s.Upsert(context.Background(), []port.VectorItem{item("d", []float32{1}, "", "x.txt")})
	assert.Error(t, err)
}

func TestQuery_Empty(t *testing.T) {
	s := NewMemoryVectorStore(0)
	results, err := s.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_ByFilter(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, nil, &domain.FolderFilter{Pattern: "finance"}))
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, []string{"c", "missing"}, nil))
	n, _ = s.Count(ctx)
	assert.Equal(t, 0, n)
}

func TestList(t *testing.T) {
	s := seed(t)
	results, err := s.List(context.Background(), &domain.FolderFilter{Pattern: "finance"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)

	results, err = s.List(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFolders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore(2)
	require.NoError(t, s.Upsert(ctx, []port.VectorItem{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{domain.MetaSourcePath: "hr/handbook.pdf"}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]string{domain.MetaSourcePath: "finance/q1.pdf", domain.MetaFolder: "finance"}},
		{ID: "c", Vector: []float32{1, 1}, Metadata: map[string]string{domain.MetaSourcePath: "finance/q2.pdf", domain.MetaFolder: "finance"}},
		{ID: "d", Vector: []float32{1, 0}, Metadata: map[string]string{domain.MetaSourcePath: "readme.md"}},
	}))

	folders, err := s.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"finance", "hr"}, folders)
}
