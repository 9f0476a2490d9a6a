package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
	"docqa/internal/port"
)

const cohereProvider = "cohere"

// CohereReranker implements cross-encoder reranking using Cohere's API.
type CohereReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Cohere API types
type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []cohereRerankResult `json:"results"`
}

type cohereRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewCohereReranker creates a new Cohere reranker.
func NewCohereReranker(apiKeyEnv, model, baseURL string) (*CohereReranker, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	if model == "" {
		model = "rerank-english-v3.0"
	}
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}

	return &CohereReranker{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Rerank scores every document against query in a single request.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string) ([]port.RerankedResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	// Cohere has a limit of 1000 documents per request
	const maxDocs = 1000
	if len(documents) > maxDocs {
		documents = documents[:maxDocs]
	}

	jsonData, err := json.Marshal(cohereRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, cohereProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, cohereProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderError(domain.KindForStatus(resp.StatusCode), cohereProvider,
			fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var rerankResp cohereRerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return nil, domain.NewProviderError(domain.KindMalformedResponse, cohereProvider, err)
	}

	results := make([]port.RerankedResult, 0, len(rerankResp.Results))
	for _, res := range rerankResp.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			continue
		}
		results = append(results, port.RerankedResult{Index: res.Index, Score: res.RelevanceScore})
	}

	sortReranked(results)
	return results, nil
}

// ModelName returns the model name.
func (r *CohereReranker) ModelName() string {
	return r.model
}

// SimpleReranker scores documents by the fraction of query concepts they
// contain. Used when no external reranker is configured.
type SimpleReranker struct {
	tokenizer *analyzer.Tokenizer
}

func NewSimpleReranker(tokenizer *analyzer.Tokenizer) *SimpleReranker {
	return &SimpleReranker{tokenizer: tokenizer}
}

// Rerank performs term-overlap reranking. Ties keep input order.
func (r *SimpleReranker) Rerank(ctx context.Context, query string, documents []string) ([]port.RerankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := r.tokenizer.Concepts(query)
	results := make([]port.RerankedResult, len(documents))

	if len(queryTerms) == 0 {
		for i := range documents {
			results[i] = port.RerankedResult{Index: i, Score: 1.0 / float64(i+1)}
		}
		return results, nil
	}

	for i, doc := range documents {
		docTerms := r.tokenizer.TermSet(doc)
		matches := 0
		for _, term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				matches++
			}
		}
		results[i] = port.RerankedResult{
			Index: i,
			Score: float64(matches) / float64(len(queryTerms)),
		}
	}

	sortReranked(results)
	return results, nil
}

func (r *SimpleReranker) ModelName() string {
	return "simple-overlap"
}

// sortReranked orders by score descending, then by original index so equal
// scores keep a stable order across runs.
func sortReranked(results []port.RerankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
}
