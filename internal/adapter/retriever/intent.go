package retriever

import (
	"regexp"
	"strings"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

type intentPattern struct {
	re     *regexp.Regexp
	weight float64
	intent domain.Intent
}

// Synthesis patterns and their weights. A query is a synthesis query when the
// accumulated weight reaches the classifier threshold.
var synthesisPatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\b(summari[sz]e|summary|summaries|overview|recap)\b`), 0.8, domain.IntentSynthesis},
	{regexp.MustCompile(`(?i)\b(compare|comparison|contrast|versus|vs\.?|differences?\s+between)\b`), 0.8, domain.IntentComparison},
	{regexp.MustCompile(`(?i)\b(list|enumerate)\s+(all|every|each)\b`), 0.7, domain.IntentListing},
	{regexp.MustCompile(`(?i)\b(all|every)\s+(the\s+)?[a-z0-9]+s\b`), 0.5, domain.IntentListing},
	{regexp.MustCompile(`(?i)\b(across|multiple|several|various)\b`), 0.3, domain.IntentSynthesis},
	{regexp.MustCompile(`(?i)\b(reports|documents|files|meetings|projects|quarters)\b`), 0.3, domain.IntentSynthesis},
	{regexp.MustCompile(`(?i)\b(trends?|over\s+time|timeline|history\s+of)\b`), 0.4, domain.IntentSynthesis},
	{regexp.MustCompile(`(?i)\w+,\s*\w+(,\s*\w+)*,?\s+(and|&|or)\s+\w+`), 0.4, domain.IntentSynthesis},
}

var timeSensitivePattern = regexp.MustCompile(`(?i)\b(today|tonight|right now|currently|latest|this (week|morning|afternoon)|yesterday)\b`)

// IntentClassifier scores queries against weighted keyword patterns.
type IntentClassifier struct {
	tokenizer *analyzer.Tokenizer
	threshold float64
}

func NewIntentClassifier(tokenizer *analyzer.Tokenizer, threshold float64) *IntentClassifier {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &IntentClassifier{tokenizer: tokenizer, threshold: threshold}
}

// Classify analyses query. The dominant intent is the one contributing the
// most weight; queries without synthesis signals are lookups.
func (c *IntentClassifier) Classify(query string) domain.QueryAnalysis {
	score := 0.0
	byIntent := make(map[domain.Intent]float64)
	for _, p := range synthesisPatterns {
		if p.re.MatchString(query) {
			score += p.weight
			byIntent[p.intent] += p.weight
		}
	}
	if score > 1 {
		score = 1
	}

	intent := domain.IntentLookup
	best := 0.0
	for _, candidate := range []domain.Intent{domain.IntentComparison, domain.IntentListing, domain.IntentSynthesis} {
		if w := byIntent[candidate]; w > best {
			best = w
			intent = candidate
		}
	}

	concepts := c.tokenizer.Concepts(query)
	synthesis := score >= c.threshold
	if !synthesis && intent != domain.IntentComparison {
		intent = domain.IntentLookup
	}

	return domain.QueryAnalysis{
		Intent:         intent,
		SynthesisScore: score,
		Synthesis:      synthesis,
		Complexity:     complexity(concepts, score),
		TimeSensitive:  timeSensitivePattern.MatchString(query),
		Concepts:       concepts,
	}
}

// complexity grows with the number of distinct concepts and the synthesis
// signal, saturating at 1.
func complexity(concepts []string, synthesisScore float64) float64 {
	c := float64(len(concepts))/8.0*0.6 + synthesisScore*0.4
	if c > 1 {
		return 1
	}
	return c
}

// leadingVerb strips an instruction verb so the remainder can be decomposed.
var leadingVerb = regexp.MustCompile(`(?i)^\s*(please\s+)?(summari[sz]e|list|compare|contrast|describe|show|give me|tell me about|what are|what were)\s+(the\s+)?`)

func stripLeadingVerb(query string) string {
	return strings.TrimSpace(leadingVerb.ReplaceAllString(query, ""))
}
