package livesearch

import (
	"context"
	"path"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// CatalogSearcher matches the term against the file names of the indexed
// corpus. It backs live_corpus_search when no endpoint is configured.
type CatalogSearcher struct {
	store      port.VectorStore
	maxResults int
	scanLimit  int
}

func NewCatalogSearcher(store port.VectorStore, maxResults, scanLimit int) *CatalogSearcher {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &CatalogSearcher{store: store, maxResults: maxResults, scanLimit: scanLimit}
}

// SearchLive returns files whose path contains every word of term,
// shortest names first.
func (s *CatalogSearcher) SearchLive(ctx context.Context, term string) ([]domain.LiveResult, error) {
	words := strings.Fields(strings.ToLower(term))
	if len(words) == 0 {
		return nil, nil
	}

	items, err := s.store.List(ctx, nil, s.scanLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var results []domain.LiveResult
	for _, item := range items {
		src := item.Metadata[domain.MetaSourcePath]
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		if matchesAll(strings.ToLower(src), words) {
			results = append(results, domain.LiveResult{Name: path.Base(src), Link: src})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if len(results[i].Name) != len(results[j].Name) {
			return len(results[i].Name) < len(results[j].Name)
		}
		return results[i].Link < results[j].Link
	})
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

func matchesAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
