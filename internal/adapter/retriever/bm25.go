package retriever

import (
	"math"

	"docqa/internal/adapter/analyzer"
)

// BM25Index is an in-memory lexical index over a fixed candidate set. It is
// built per retrieval from the merged dense candidates and discarded after.
type BM25Index struct {
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64

	docs      []map[string]int
	lengths   []int
	df        map[string]int
	avgDocLen float64
}

// NewBM25Index tokenizes texts and collects term statistics.
func NewBM25Index(tokenizer *analyzer.Tokenizer, texts []string, k1, b float64) *BM25Index {
	if k1 <= 0 {
		k1 = 1.2
	}
	if b < 0 || b > 1 {
		b = 0.75
	}
	idx := &BM25Index{
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
		docs:      make([]map[string]int, len(texts)),
		lengths:   make([]int, len(texts)),
		df:        make(map[string]int),
	}

	total := 0
	for i, text := range texts {
		tokens := tokenizer.Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.df[term]++
		}
		idx.docs[i] = tf
		idx.lengths[i] = len(tokens)
		total += len(tokens)
	}
	if len(texts) > 0 {
		idx.avgDocLen = float64(total) / float64(len(texts))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	return len(idx.docs)
}

// Scores returns the BM25 score of every indexed document for query, in
// index order.
func (idx *BM25Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.docs))
	queryTokens := idx.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 || idx.avgDocLen == 0 {
		return scores
	}

	N := float64(len(idx.docs))
	seen := make(map[string]struct{}, len(queryTokens))
	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		n := float64(idx.df[term])
		if n == 0 {
			continue
		}
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for i, tf := range idx.docs {
			f, ok := tf[term]
			if !ok {
				continue
			}
			dl := float64(idx.lengths[i])
			tfFloat := float64(f)
			scores[i] += idf * (tfFloat * (idx.k1 + 1)) / (tfFloat + idx.k1*(1-idx.b+idx.b*dl/idx.avgDocLen))
		}
	}
	return scores
}

// minMaxNormalize rescales values into [0,1]. A constant slice maps to all
// ones when the constant is positive and all zeros otherwise.
func minMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		if hi > 0 {
			for i := range out {
				out[i] = 1
			}
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
