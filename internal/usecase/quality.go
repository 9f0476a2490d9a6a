package usecase

import (
	"math"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

// expectation is the evidence volume an intent needs to be answerable.
type expectation struct {
	chunks  int
	sources int
}

var expectations = map[domain.Intent]expectation{
	domain.IntentLookup:     {chunks: 3, sources: 1},
	domain.IntentSynthesis:  {chunks: 6, sources: 3},
	domain.IntentComparison: {chunks: 4, sources: 2},
	domain.IntentListing:    {chunks: 8, sources: 3},
}

func expectationFor(intent domain.Intent) expectation {
	if e, ok := expectations[intent]; ok {
		return e
	}
	return expectations[domain.IntentLookup]
}

// contradictions are term pairs whose co-occurrence in one result set
// suggests the evidence disagrees with itself.
var contradictions = [][2]string{
	{"increase", "decrease"},
	{"increased", "decreased"},
	{"rise", "fall"},
	{"growth", "decline"},
	{"profit", "loss"},
	{"approved", "rejected"},
	{"above", "below"},
	{"higher", "lower"},
}

// QualityAssessor scores a retrieval outcome on five weighted dimensions.
type QualityAssessor struct {
	tokenizer *analyzer.Tokenizer
	cfg       config.AdaptiveConfig
}

func NewQualityAssessor(tokenizer *analyzer.Tokenizer, cfg config.AdaptiveConfig) *QualityAssessor {
	return &QualityAssessor{tokenizer: tokenizer, cfg: cfg}
}

// Assess scores outcome for query. Outcomes without evidence score zero.
func (a *QualityAssessor) Assess(query string, outcome domain.SearchOutcome, strategy string) domain.RetrievalResult {
	result := domain.RetrievalResult{Outcome: outcome, Strategy: strategy}
	if len(outcome.Snippets) == 0 {
		if len(outcome.Listing) > 0 {
			result.QualityScore, result.Confidence = 1, 1
		}
		return result
	}

	intent := outcome.Analysis.Intent
	sources := outcome.UniqueSources
	if sources == 0 {
		sources = countSources(outcome.Snippets)
	}

	result.Relevance = a.relevance(outcome.Snippets)
	result.Coverage = a.coverage(query, outcome.Snippets, intent, sources)
	result.Sufficiency = sufficiency(len(outcome.Snippets), sources, intent)
	result.Diversity = a.diversity(outcome.Snippets, sources)
	result.Coherence = coherence(outcome.Snippets)

	w := a.weights()
	score := w[0]*result.Relevance + w[1]*result.Coverage + w[2]*result.Sufficiency +
		w[3]*result.Diversity + w[4]*result.Coherence
	result.QualityScore = clamp(score)
	result.Confidence = confidence(outcome.Snippets, intent)
	return result
}

// weights returns the configured dimension weights normalized to sum to one.
func (a *QualityAssessor) weights() [5]float64 {
	w := [5]float64{a.cfg.RelevanceWeight, a.cfg.CoverageWeight, a.cfg.SufficiencyWeight, a.cfg.DiversityWeight, a.cfg.CoherenceWeight}
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return [5]float64{0.30, 0.25, 0.20, 0.15, 0.10}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func (a *QualityAssessor) relevance(snippets []domain.Snippet) float64 {
	total := 0.0
	for _, s := range snippets {
		total += clamp(s.Relevance)
	}
	return total / float64(len(snippets))
}

// coverage is the fraction of query concepts found in the evidence, with a
// bonus when a multi-source intent is served by several documents.
func (a *QualityAssessor) coverage(query string, snippets []domain.Snippet, intent domain.Intent, sources int) float64 {
	concepts := a.tokenizer.Concepts(query)
	if len(concepts) == 0 {
		return 1
	}
	present := make(map[string]struct{})
	for _, s := range snippets {
		for term := range a.tokenizer.TermSet(s.Snippet) {
			present[term] = struct{}{}
		}
	}
	found := 0
	for _, c := range concepts {
		if _, ok := present[c]; ok {
			found++
		}
	}
	cov := float64(found) / float64(len(concepts))
	if intent.MultiSource() && sources > 1 {
		cov += 0.1 * math.Min(1, float64(sources-1)/2)
	}
	return clamp(cov)
}

func sufficiency(chunks, sources int, intent domain.Intent) float64 {
	exp := expectationFor(intent)
	return 0.5*math.Min(1, float64(chunks)/float64(exp.chunks)) +
		0.5*math.Min(1, float64(sources)/float64(exp.sources))
}

// diversity mixes the share of distinct sources with the mean pairwise
// content dissimilarity of the snippets.
func (a *QualityAssessor) diversity(snippets []domain.Snippet, sources int) float64 {
	sourceRatio := float64(sources) / float64(len(snippets))
	if len(snippets) < 2 {
		return clamp(sourceRatio)
	}
	sets := make([]map[string]struct{}, len(snippets))
	for i, s := range snippets {
		sets[i] = a.tokenizer.TermSet(s.Snippet)
	}
	total, pairs := 0.0, 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return clamp(0.5*sourceRatio + 0.5*(1-total/float64(pairs)))
}

func coherence(snippets []domain.Snippet) float64 {
	words := make(map[string]struct{})
	for _, s := range snippets {
		for _, w := range analyzer.Words(s.Snippet) {
			words[w] = struct{}{}
		}
	}
	score := 1.0
	for _, pair := range contradictions {
		_, first := words[pair[0]]
		_, second := words[pair[1]]
		if first && second {
			score -= 0.2
		}
	}
	return clamp(score)
}

// confidence combines mean relevance, the inverse of the relevance variance
// and how close the snippet count is to the intent's target.
func confidence(snippets []domain.Snippet, intent domain.Intent) float64 {
	n := float64(len(snippets))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range snippets {
		mean += clamp(s.Relevance)
	}
	mean /= n
	variance := 0.0
	for _, s := range snippets {
		d := clamp(s.Relevance) - mean
		variance += d * d
	}
	variance /= n

	target := float64(expectationFor(intent).chunks)
	closeness := 1 - math.Abs(n-target)/target
	// Relevance scores live in [0,1], so their variance is at most 0.25.
	stability := 1 - math.Min(1, variance/0.25)

	return clamp(0.5*mean + 0.25*stability + 0.25*clamp(closeness))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func countSources(snippets []domain.Snippet) int {
	seen := make(map[string]struct{}, len(snippets))
	for _, s := range snippets {
		seen[s.SourcePath] = struct{}{}
	}
	return len(seen)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
