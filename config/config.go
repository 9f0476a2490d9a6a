package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the question answering engine.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Adaptive   AdaptiveConfig   `yaml:"adaptive"`
	Agent      AgentConfig      `yaml:"agent"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	LLM        LLMConfig        `yaml:"llm"`
	Store      StoreConfig      `yaml:"store"`
	LiveSearch LiveSearchConfig `yaml:"live_search"`
	Retry      RetryConfig      `yaml:"retry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CacheConfig holds query cache configuration.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MaxSize             int           `yaml:"max_size"`
	TTL                 time.Duration `yaml:"ttl"`
	SemanticEnabled     bool          `yaml:"semantic_enabled"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MinConfidence       float64       `yaml:"min_confidence"`
	MinPriority         float64       `yaml:"min_priority"`
	EvictionBuffer      int           `yaml:"eviction_buffer"` // 0 = max_size/10
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	CostPerQuery        float64       `yaml:"cost_per_query"`
	Backend             string        `yaml:"backend"` // "none", "bolt", "redis"
	RedisAddr           string        `yaml:"redis_addr"`
	RedisKey            string        `yaml:"redis_key"`
}

// RetrieveConfig holds hybrid retrieval configuration.
type RetrieveConfig struct {
	CandidateK           int     `yaml:"candidate_k"`
	RerankTopN           int     `yaml:"rerank_top_n"`
	MaxResults           int     `yaml:"max_results"`
	SynthesisMaxResults  int     `yaml:"synthesis_max_results"`
	LexicalWeight        float64 `yaml:"lexical_weight"` // dense weight is 1 - lexical_weight
	K1                   float64 `yaml:"k1"`
	B                    float64 `yaml:"b"`
	SynthesisThreshold   float64 `yaml:"synthesis_threshold"`
	MaxQueryVariants     int     `yaml:"max_query_variants"`
	MaxChunksPerFile     int     `yaml:"max_chunks_per_file"`
	CompressionEnabled   bool    `yaml:"compression_enabled"`
	CompressionThreshold float64 `yaml:"compression_threshold"`
	SnippetBudget        int     `yaml:"snippet_budget"` // characters per snippet
	SynthesisBudgetScale float64 `yaml:"synthesis_budget_scale"`
	FuzzyDedupThreshold  float64 `yaml:"fuzzy_dedup_threshold"`
	MinSynthesisSources  int     `yaml:"min_synthesis_sources"`
	FolderListingLimit   int     `yaml:"folder_listing_limit"`
}

// AdaptiveConfig holds the quality-adaptive retry configuration.
type AdaptiveConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxIterations     int     `yaml:"max_iterations"`
	QualityThreshold  float64 `yaml:"quality_threshold"`
	RelevanceWeight   float64 `yaml:"relevance_weight"`
	CoverageWeight    float64 `yaml:"coverage_weight"`
	SufficiencyWeight float64 `yaml:"sufficiency_weight"`
	DiversityWeight   float64 `yaml:"diversity_weight"`
	CoherenceWeight   float64 `yaml:"coherence_weight"`
}

// AgentConfig holds orchestrator configuration.
type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	SystemPrompt     string        `yaml:"system_prompt"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "openai", "ollama", "hash"
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Dimension      int    `yaml:"dimension"`
	QueryPrefix    string `yaml:"query_prefix"`
	DocumentPrefix string `yaml:"document_prefix"`
}

// RerankerConfig holds cross-encoder configuration.
type RerankerConfig struct {
	Provider  string `yaml:"provider"` // "cohere", "simple", "none"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// LLMConfig holds generative model configuration.
type LLMConfig struct {
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	Path string `yaml:"path"` // bolt file for vectors; empty shares the data db, "memory" keeps them in process
}

// LiveSearchConfig holds the live corpus search endpoint.
type LiveSearchConfig struct {
	Endpoint   string        `yaml:"endpoint"` // empty falls back to the catalog search
	APIKeyEnv  string        `yaml:"api_key_env"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetryConfig holds provider retry configuration.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:             true,
			MaxSize:             1000,
			TTL:                 24 * time.Hour,
			SemanticEnabled:     true,
			SimilarityThreshold: 0.85,
			MinConfidence:       0.7,
			MinPriority:         0.3,
			SweepInterval:       10 * time.Minute,
			CostPerQuery:        0.02,
			Backend:             "bolt",
			RedisKey:            "docqa:cache",
		},
		Retrieve: RetrieveConfig{
			CandidateK:           100,
			RerankTopN:           40,
			MaxResults:           10,
			SynthesisMaxResults:  20,
			LexicalWeight:        0.3,
			K1:                   1.2,
			B:                    0.75,
			SynthesisThreshold:   0.7,
			MaxQueryVariants:     4,
			MaxChunksPerFile:     4,
			CompressionEnabled:   true,
			CompressionThreshold: 0.3,
			SnippetBudget:        1200,
			SynthesisBudgetScale: 2.0,
			FuzzyDedupThreshold:  0.85,
			MinSynthesisSources:  3,
			FolderListingLimit:   2000,
		},
		Adaptive: AdaptiveConfig{
			Enabled:           true,
			MaxIterations:     3,
			QualityThreshold:  0.7,
			RelevanceWeight:   0.30,
			CoverageWeight:    0.25,
			SufficiencyWeight: 0.20,
			DiversityWeight:   0.15,
			CoherenceWeight:   0.10,
		},
		Agent: AgentConfig{
			MaxIterations:    8,
			RateLimitBackoff: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
		},
		Reranker: RerankerConfig{
			Provider:  "simple",
			Model:     "rerank-english-v3.0",
			APIKeyEnv: "COHERE_API_KEY",
		},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			APIKeyEnv:         "OPENAI_API_KEY",
			Temperature:       0.2,
			MaxTokens:         1500,
			RequestsPerSecond: 2,
			Timeout:           90 * time.Second,
		},
		LiveSearch: LiveSearchConfig{
			MaxResults: 10,
			Timeout:    15 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Cache.MaxSize <= 0:
		return fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize)
	case c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1:
		return fmt.Errorf("cache.similarity_threshold must be in (0,1], got %v", c.Cache.SimilarityThreshold)
	case c.Retrieve.LexicalWeight < 0 || c.Retrieve.LexicalWeight > 1:
		return fmt.Errorf("retrieve.lexical_weight must be in [0,1], got %v", c.Retrieve.LexicalWeight)
	case c.Retrieve.MaxChunksPerFile <= 0:
		return fmt.Errorf("retrieve.max_chunks_per_file must be positive, got %d", c.Retrieve.MaxChunksPerFile)
	case c.Retrieve.CandidateK <= 0:
		return fmt.Errorf("retrieve.candidate_k must be positive, got %d", c.Retrieve.CandidateK)
	case c.Agent.MaxIterations <= 0:
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	case c.Adaptive.MaxIterations <= 0:
		return fmt.Errorf("adaptive.max_iterations must be positive, got %d", c.Adaptive.MaxIterations)
	}
	switch c.Cache.Backend {
	case "", "none", "bolt", "redis":
	default:
		return fmt.Errorf("cache.backend %q is not one of none, bolt, redis", c.Cache.Backend)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataPath returns the path to the bolt database holding vectors and cache.
func DataPath(dir string) string {
	return filepath.Join(dir, ".docqa", "docqa.db")
}

// EnsureDataDir ensures the .docqa directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".docqa"), 0755)
}
