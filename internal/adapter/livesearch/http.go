// Package livesearch searches the live document corpus by name, either
// through an HTTP search endpoint or over the indexed catalog.
package livesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"docqa/config"
	"docqa/internal/domain"
)

const provider = "live_search"

// HTTPSearcher queries a JSON search endpoint with ?q=<term>. The endpoint
// may answer with a bare array of {name, link} or with {"results": [...]}.
type HTTPSearcher struct {
	endpoint   string
	apiKey     string
	maxResults int
	client     *http.Client
}

func NewHTTPSearcher(cfg config.LiveSearchConfig) *HTTPSearcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &HTTPSearcher{
		endpoint:   cfg.Endpoint,
		apiKey:     apiKey,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSearcher) SearchLive(ctx context.Context, term string) ([]domain.LiveResult, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", term)
	if s.maxResults > 0 {
		q.Set("limit", fmt.Sprint(s.maxResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderError(domain.KindForStatus(resp.StatusCode), provider,
			fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	results, err := decodeResults(body)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindMalformedResponse, provider, err)
	}
	if s.maxResults > 0 && len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

func decodeResults(body []byte) ([]domain.LiveResult, error) {
	var list []domain.LiveResult
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Results []domain.LiveResult `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Results, nil
}
