package retriever

import (
	"regexp"
	"sort"
	"strings"
)

// QueryExpander widens lexical recall with domain synonyms and decomposes
// synthesis queries into focused variants.
type QueryExpander struct {
	synonyms    map[string][]string
	maxVariants int
}

func NewQueryExpander(maxVariants int) *QueryExpander {
	if maxVariants <= 0 {
		maxVariants = 4
	}
	return &QueryExpander{synonyms: defaultSynonyms(), maxVariants: maxVariants}
}

// WithSynonyms adds or replaces synonym groups, keyed by lowercase term.
func (e *QueryExpander) WithSynonyms(extra map[string][]string) *QueryExpander {
	for term, syns := range extra {
		e.synonyms[strings.ToLower(term)] = syns
	}
	return e
}

// Expand appends synonyms of recognised terms to query. The result is only
// used for lexical scoring; reranking uses the original text.
func (e *QueryExpander) Expand(query string) string {
	lower := strings.ToLower(query)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}

	var additions []string
	seen := make(map[string]struct{})
	terms := make([]string, 0, len(e.synonyms))
	for term := range e.synonyms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		if !containsTerm(lower, present, term) {
			continue
		}
		for _, syn := range e.synonyms[term] {
			if _, ok := seen[syn]; ok || strings.Contains(lower, syn) {
				continue
			}
			seen[syn] = struct{}{}
			additions = append(additions, syn)
		}
	}

	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}

func containsTerm(lower string, present map[string]struct{}, term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(lower, term)
	}
	_, ok := present[term]
	return ok
}

var (
	comparePattern = regexp.MustCompile(`(?i)\b(?:compare|contrast|comparison\s+of|differences?\s+between)\s+(?:the\s+)?(.+?)\s+(?:and|with|to|against|vs\.?|versus)\s+(?:the\s+)?(.+?)[\s?.!]*$`)
	versusPattern  = regexp.MustCompile(`(?i)^(?:the\s+)?(.+?)\s+(?:vs\.?|versus)\s+(?:the\s+)?(.+?)[\s?.!]*$`)
	allPattern     = regexp.MustCompile(`(?i)\b(?:all|every)\s+(?:the\s+|of\s+the\s+)?([a-z0-9][a-z0-9\s-]*?)(?:\s+(?:in|from|for|of|about|that|which)\b.*)?[\s?.!]*$`)
	listSplit      = regexp.MustCompile(`(?i)\s*,\s*(?:and\s+|or\s+)?|\s+(?:and|&)\s+`)
	conjunction    = regexp.MustCompile(`(?i)\s(and|&)\s`)
)

// Decompose generates up to the configured number of query variants by rule:
// compare pairs, comma or "and" joined lists, and "all X" expansions. The
// original query is always the first variant.
func (e *QueryExpander) Decompose(query string) []string {
	query = strings.TrimSpace(query)
	variants := []string{query}
	add := func(v string) {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			return
		}
		for _, existing := range variants {
			if strings.EqualFold(existing, v) {
				return
			}
		}
		variants = append(variants, v)
	}

	if a, b, ok := comparePair(query); ok {
		add(a + " characteristics")
		add(b + " characteristics")
		add(a + " vs " + b + " differences")
	}

	if items := listItems(query); len(items) >= 2 {
		for _, item := range items {
			add(item)
		}
	}

	if m := allPattern.FindStringSubmatch(query); m != nil {
		subject := strings.TrimSpace(m[1])
		if subject != "" {
			add("list of " + subject)
			add(subject + " categories")
			add(subject + " overview")
		}
	}

	if len(variants) > e.maxVariants {
		variants = variants[:e.maxVariants]
	}
	return variants
}

func comparePair(query string) (string, string, bool) {
	for _, re := range []*regexp.Regexp{comparePattern, versusPattern} {
		if m := re.FindStringSubmatch(query); m != nil {
			a, b := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if a != "" && b != "" {
				return a, b, true
			}
		}
	}
	return "", "", false
}

// listItems splits "Q1, Q2, and Q3 reports" into "Q1 reports", "Q2 reports"
// and "Q3 reports": a head noun trailing the last item is shared by all.
func listItems(query string) []string {
	body := strings.TrimRight(stripLeadingVerb(query), " ?.!")
	if !strings.Contains(body, ",") && !conjunction.MatchString(body) {
		return nil
	}
	if _, _, isCompare := comparePair(query); isCompare && !strings.Contains(body, ",") {
		return nil
	}

	parts := listSplit.Split(body, -1)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if len(items) < 2 {
		return nil
	}

	last := strings.Fields(items[len(items)-1])
	first := strings.Fields(items[0])
	if len(last) > 1 && len(first) == 1 {
		head := strings.Join(last[1:], " ")
		items[len(items)-1] = last[0]
		for i := range items {
			items[i] = items[i] + " " + head
		}
	}
	return items
}

// defaultSynonyms covers the vocabulary of typical business document corpora.
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"revenue":    {"sales", "income", "turnover"},
		"sales":      {"revenue"},
		"profit":     {"earnings", "margin", "net income"},
		"cost":       {"expense", "spend", "expenditure"},
		"costs":      {"expenses", "spending"},
		"budget":     {"allocation", "forecast", "plan"},
		"q1":         {"first quarter"},
		"q2":         {"second quarter"},
		"q3":         {"third quarter"},
		"q4":         {"fourth quarter"},
		"employee":   {"staff", "personnel", "worker"},
		"employees":  {"staff", "personnel", "headcount"},
		"customer":   {"client", "account"},
		"customers":  {"clients", "accounts"},
		"meeting":    {"minutes", "agenda"},
		"policy":     {"guideline", "procedure", "rule"},
		"contract":   {"agreement", "terms"},
		"deadline":   {"due date", "timeline"},
		"manager":    {"lead", "supervisor"},
		"report":     {"summary", "findings"},
		"invoice":    {"bill", "payment"},
		"hiring":     {"recruiting", "recruitment"},
		"onboarding": {"orientation", "training"},
		"risk":       {"exposure", "issue"},
		"goal":       {"objective", "target"},
		"goals":      {"objectives", "targets", "okrs"},
		"roadmap":    {"plan", "milestones"},
		"doc":        {"document"},
		"docs":       {"documents", "documentation"},
	}
}
