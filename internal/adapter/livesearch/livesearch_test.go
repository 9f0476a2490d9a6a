package livesearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/adapter/memstore"
	"docqa/internal/domain"
	"docqa/internal/port"
)

func TestHTTPSearcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "budget", r.URL.Query().Get("q"))
		switch r.URL.Path {
		case "/wrapped":
			w.Write([]byte(`{"results":[{"name":"Budget 2026","link":"https://docs/b26"}]}`))
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/garbage":
			w.Write([]byte(`<html>`))
		default:
			w.Write([]byte(`[{"name":"Budget 2025","link":"https://docs/b25"},{"name":"Budget 2026","link":"https://docs/b26"}]`))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	s := NewHTTPSearcher(config.LiveSearchConfig{Endpoint: srv.URL + "/search", MaxResults: 1})
	results, err := s.SearchLive(ctx, "budget")
	require.NoError(t, err)
	assert.Equal(t, []domain.LiveResult{{Name: "Budget 2025", Link: "https://docs/b25"}}, results)

	s = NewHTTPSearcher(config.LiveSearchConfig{Endpoint: srv.URL + "/wrapped"})
	results, err = s.SearchLive(ctx, "budget")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Budget 2026", results[0].Name)

	s = NewHTTPSearcher(config.LiveSearchConfig{Endpoint: srv.URL + "/limited"})
	_, err = s.SearchLive(ctx, "budget")
	assert.True(t, domain.IsRateLimited(err))

	s = NewHTTPSearcher(config.LiveSearchConfig{Endpoint: srv.URL + "/garbage"})
	_, err = s.SearchLive(ctx, "budget")
	assert.Equal(t, domain.KindMalformedResponse, domain.KindOf(err))
}

func TestCatalogSearcher(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryVectorStore(1)
	meta := func(p string) map[string]string { return map[string]string{domain.MetaSourcePath: p} }
	require.NoError(t, store.Upsert(ctx, []port.VectorItem{
		{ID: "1", Vector: []float32{1}, Metadata: meta("finance/budget-2026.xlsx")},
		{ID: "2", Vector: []float32{1}, Metadata: meta("finance/budget-2026.xlsx")},
		{ID: "3", Vector: []float32{1}, Metadata: meta("finance/old/budget-2025-draft.xlsx")},
		{ID: "4", Vector: []float32{1}, Metadata: meta("hr/handbook.pdf")},
	}))

	s := NewCatalogSearcher(store, 10, 0)
	results, err := s.SearchLive(ctx, "Budget")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "budget-2026.xlsx", results[0].Name)
	assert.Equal(t, "finance/budget-2026.xlsx", results[0].Link)

	results, err = s.SearchLive(ctx, "budget draft")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.SearchLive(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, results)
}
