package retriever

import (
	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

// fuzzyDedup drops snippets whose text is at least threshold similar to an
// earlier, higher-ranked snippet.
func fuzzyDedup(snippets []domain.Snippet, threshold float64) []domain.Snippet {
	if threshold <= 0 || threshold > 1 || len(snippets) < 2 {
		return snippets
	}
	kept := make([]domain.Snippet, 0, len(snippets))
	keptWords := make([][]string, 0, len(snippets))
	for _, s := range snippets {
		words := analyzer.Words(s.Snippet)
		duplicate := false
		for _, prev := range keptWords {
			if quickRatioBelow(words, prev, threshold) {
				continue
			}
			if similarityRatio(words, prev) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, s)
		keptWords = append(keptWords, words)
	}
	return kept
}

// similarityRatio is 2*LCS/(len(a)+len(b)) over words.
func similarityRatio(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return 2 * float64(prev[len(b)]) / float64(len(a)+len(b))
}

// quickRatioBelow bounds the ratio by the length difference so obviously
// different snippets skip the quadratic comparison.
func quickRatioBelow(a, b []string, threshold float64) bool {
	short, long := len(a), len(b)
	if short > long {
		short, long = long, short
	}
	if short+long == 0 {
		return false
	}
	return 2*float64(short)/float64(short+long) < threshold
}
