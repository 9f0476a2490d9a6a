package retriever

import "docqa/internal/domain"

// capPerSource keeps at most maxPerFile chunks from each source file,
// preserving rank order. A non-positive cap disables the limit.
func capPerSource(ranked []domain.ScoredChunk, maxPerFile int) []domain.ScoredChunk {
	if maxPerFile <= 0 {
		return ranked
	}
	counts := make(map[string]int)
	kept := make([]domain.ScoredChunk, 0, len(ranked))
	for _, sc := range ranked {
		key := sc.Chunk.SourcePath
		if key == "" {
			key = sc.Chunk.ID
		}
		if counts[key] >= maxPerFile {
			continue
		}
		counts[key]++
		kept = append(kept, sc)
	}
	return kept
}

// uniqueSources counts the distinct source files among snippets.
func uniqueSources(snippets []domain.Snippet) int {
	seen := make(map[string]struct{}, len(snippets))
	for _, s := range snippets {
		seen[s.SourcePath] = struct{}{}
	}
	return len(seen)
}
