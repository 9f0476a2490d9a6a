package retriever

import (
	"strings"

	"docqa/internal/adapter/analyzer"
)

// Compressor keeps the sentences of a chunk that are relevant to the query.
type Compressor struct {
	tokenizer *analyzer.Tokenizer
}

func NewCompressor(tokenizer *analyzer.Tokenizer) *Compressor {
	return &Compressor{tokenizer: tokenizer}
}

// Compress returns the sentences of text whose relevance to query reaches
// threshold, joined in their original order. When no sentence qualifies the
// full text is returned.
func (c *Compressor) Compress(query, text string, threshold float64) string {
	concepts := c.tokenizer.Concepts(query)
	if len(concepts) == 0 {
		return text
	}
	sentences := analyzer.SplitSentences(text)
	if len(sentences) <= 1 {
		return text
	}

	kept := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if c.score(concepts, sentence) >= threshold {
			kept = append(kept, sentence)
		}
	}
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, " ")
}

// score is the fraction of query concepts present in sentence.
func (c *Compressor) score(concepts []string, sentence string) float64 {
	terms := c.tokenizer.TermSet(sentence)
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, concept := range concepts {
		if _, ok := terms[concept]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(concepts))
}

// truncate caps text at budget bytes, cutting back to the last word boundary
// and marking the cut with an ellipsis.
func truncate(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	cut := text[:budget]
	for len(cut) > 0 && !isUTF8Start(text[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndexAny(cut, " \n\t"); i > budget/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func isUTF8Start(b byte) bool {
	return b&0xC0 != 0x80
}
