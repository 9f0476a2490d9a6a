// Package openaiclient builds go-openai clients and classifies their errors.
package openaiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docqa/internal/domain"
)

// New returns a client for an OpenAI-compatible endpoint. The API key is read
// from apiKeyEnv; local endpoints such as Ollama accept any key.
func New(apiKeyEnv, baseURL string, timeout time.Duration) (*openai.Client, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		if baseURL == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
		}
		apiKey = "local"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg), nil
}

// Classify wraps err in a domain.ProviderError with a kind derived from the
// HTTP status or transport failure.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(kindForStatus(apiErr.HTTPStatusCode), provider, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.NewProviderError(kindForStatus(reqErr.HTTPStatusCode), provider, err)
	}
	return domain.NewProviderError(domain.KindProviderUnavailable, provider, err)
}

func kindForStatus(status int) domain.ErrorKind {
	if k := domain.KindForStatus(status); k != domain.KindNone {
		return k
	}
	return domain.KindProviderUnavailable
}
