package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docqa/config"
	"docqa/internal/adapter/openaiclient"
)

const provider = "embedding"

// OpenAIEmbedder embeds text through any OpenAI-compatible embeddings API
// (OpenAI, Ollama, Jina, DeepSeek).
type OpenAIEmbedder struct {
	client         *openai.Client
	model          string
	dimension      int
	queryPrefix    string
	documentPrefix string
}

// NewOpenAIEmbedder creates an embedder from configuration.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	baseURL := cfg.BaseURL
	if cfg.Provider == "ollama" && baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	client, err := openaiclient.New(cfg.APIKeyEnv, baseURL, 60*time.Second)
	if err != nil {
		return nil, err
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = defaultDimension(cfg.Model)
	}

	return &OpenAIEmbedder{
		client:         client,
		model:          cfg.Model,
		dimension:      dimension,
		queryPrefix:    cfg.QueryPrefix,
		documentPrefix: cfg.DocumentPrefix,
	}, nil
}

func defaultDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large", "jina-embeddings-v3":
		return 1024
	case "all-minilm":
		return 384
	}
	return 1536
}

func (e *OpenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.documentPrefix+text)
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.queryPrefix+text)
}

// EmbedBatch embeds several documents in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = e.documentPrefix + t
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, openaiclient.Classify(provider, err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = Normalize(data.Embedding)
		}
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, openaiclient.Classify(provider, fmt.Errorf("missing embedding for input %d", i))
		}
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
