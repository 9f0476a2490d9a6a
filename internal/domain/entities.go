package domain

import (
	"strings"
	"time"
)

// Chunk is the immutable retrieval unit produced by ingestion.
type Chunk struct {
	ID           string
	Text         string
	Embedding    []float32
	SourcePath   string
	Folder       string
	ChunkIndex   int
	TotalChunks  int
	MimeType     string
	ModifiedTime time.Time
}

type Query struct {
	Raw        string
	Normalized string
	Embedding  []float32
}

// NewQuery builds a query with its normalized form filled in.
func NewQuery(raw string) Query {
	return Query{Raw: raw, Normalized: NormalizeQuery(raw)}
}

// NormalizeQuery lowercases, collapses whitespace and strips trailing
// punctuation so trivially different phrasings share a cache key.
func NormalizeQuery(raw string) string {
	s := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	return strings.TrimRight(s, "?!.,;: ")
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Snippet is one emitted piece of evidence with provenance.
type Snippet struct {
	SourcePath string  `json:"source_path"`
	Snippet    string  `json:"snippet"`
	Relevance  float64 `json:"relevance"`
	ChunkIndex int     `json:"chunk_index"`
}

// Intent is the coarse query category used for retrieval and cache policy.
type Intent string

const (
	IntentLookup     Intent = "lookup"
	IntentSynthesis  Intent = "synthesis"
	IntentComparison Intent = "comparison"
	IntentListing    Intent = "listing"
)

// MultiSource reports whether the intent expects evidence from several documents.
func (i Intent) MultiSource() bool {
	return i == IntentSynthesis || i == IntentComparison || i == IntentListing
}

type QueryAnalysis struct {
	Intent         Intent
	SynthesisScore float64
	Synthesis      bool
	Complexity     float64
	TimeSensitive  bool
	Concepts       []string
}

// Strategy carries the tunable retrieval parameters for one attempt.
type Strategy struct {
	Name                 string
	CandidateK           int
	MaxChunksPerFile     int
	MaxResults           int
	ForceMultiQuery      bool
	CompressionEnabled   bool
	CompressionThreshold float64
	FuzzyDedupThreshold  float64
}

type SearchRequest struct {
	Query    string
	Folder   string
	Strategy Strategy
}

// RetrievalResult is a scored retrieval attempt as seen by the adaptive controller.
type RetrievalResult struct {
	Outcome      SearchOutcome
	QualityScore float64
	Confidence   float64
	Relevance    float64
	Coverage     float64
	Sufficiency  float64
	Diversity    float64
	Coherence    float64
	Strategy     string
	Iterations   int
}

type CacheEntry struct {
	Key            string
	Query          string
	QueryEmbedding []float32
	Response       string
	Sources        []string
	CreatedAt      time.Time
	LastAccess     time.Time
	AccessCount    int
	Confidence     float64
	CostSaved      float64
	TTL            time.Duration
}

// Expired reports whether the entry is past its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

type SourceFile struct {
	Folder     string `json:"folder"`
	SourcePath string `json:"source_path"`
	Chunks     int    `json:"chunks"`
}

type FolderGroup struct {
	Folder string   `json:"folder"`
	Files  []string `json:"files"`
}

// LiveResult is a hit from the live corpus search.
type LiveResult struct {
	Name string `json:"name"`
	Link string `json:"link"`
}
