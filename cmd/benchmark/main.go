package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/retriever"
	"docqa/internal/adapter/store"
	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/retry"
	"docqa/internal/usecase"
)

func main() {
	dataDir := flag.String("dir", ".", "Directory holding .docqa/docqa.db")
	query := flag.String("q", "", "Query to test")
	queryFile := flag.String("f", "", "File with one query per line")
	folder := flag.String("folder", "", "Restrict to a folder")
	flag.Parse()

	queries := loadQueries(*query, *queryFile)
	if len(queries) == 0 {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./data -q \"query\" [-f queries.txt]")
		fmt.Println("\nCompares a single retrieval pass with the quality-adaptive loop:")
		fmt.Println("  1. Quality score and confidence of the first attempt")
		fmt.Println("  2. Quality score, strategy and attempts after adaptation")
		fmt.Println("  3. Latency of both")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(config.DataPath(*dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening data: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	embedder, vectorStore, err := setupEmbedding(db, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval not available: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	tokenizer := analyzer.NewTokenizer(true)
	retryer := retry.New(retry.FromConfig(cfg.Retry), nil)
	hybrid := retriever.NewHybridRetriever(vectorStore, embedder, nil, tokenizer, cfg.Retrieve, retryer, nil)
	assessor := usecase.NewQualityAssessor(tokenizer, cfg.Adaptive)

	single := cfg.Adaptive
	single.Enabled = false
	adaptive := cfg.Adaptive
	adaptive.Enabled = true
	singlePass := usecase.NewAdaptiveRetrieveUseCase(hybrid, assessor, single, nil, nil)
	adaptiveLoop := usecase.NewAdaptiveRetrieveUseCase(hybrid, assessor, adaptive, nil, nil)

	fmt.Println("ADAPTIVE RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	count, _ := vectorStore.Count(ctx)
	fmt.Printf("Chunks indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Quality threshold: %.2f, max attempts: %d\n", cfg.Adaptive.QualityThreshold, cfg.Adaptive.MaxIterations)
	fmt.Println()

	var baseTotal, adaptTotal float64
	improved := 0
	for _, q := range queries {
		req := domain.SearchRequest{Query: q, Folder: *folder}

		start := time.Now()
		base := singlePass.Retrieve(ctx, req)
		baseTime := time.Since(start)

		start = time.Now()
		adapted := adaptiveLoop.Retrieve(ctx, req)
		adaptTime := time.Since(start)

		fmt.Printf("Query: %q\n", q)
		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("  single pass: [%s %.3f] %d snippets, %d sources, %s\n",
			rating(base.QualityScore), base.QualityScore, len(base.Outcome.Snippets), base.Outcome.UniqueSources, baseTime.Round(time.Millisecond))
		fmt.Printf("  adaptive:    [%s %.3f] %d snippets, %d sources, %s (%s, %d attempts)\n",
			rating(adapted.QualityScore), adapted.QualityScore, len(adapted.Outcome.Snippets), adapted.Outcome.UniqueSources,
			adaptTime.Round(time.Millisecond), adapted.Strategy, adapted.Iterations)
		fmt.Printf("  dimensions:  relevance %.2f coverage %.2f sufficiency %.2f diversity %.2f coherence %.2f\n\n",
			adapted.Relevance, adapted.Coverage, adapted.Sufficiency, adapted.Diversity, adapted.Coherence)

		baseTotal += base.QualityScore
		adaptTotal += adapted.QualityScore
		if adapted.QualityScore > base.QualityScore {
			improved++
		}
	}

	n := float64(len(queries))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average single pass: %.3f\n", baseTotal/n)
	fmt.Printf("  Average adaptive:    %.3f\n", adaptTotal/n)
	fmt.Printf("  Improved queries:    %d/%d\n", improved, len(queries))
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	}
	return "LOW"
}

func loadQueries(query, file string) []string {
	var queries []string
	if query != "" {
		queries = append(queries, query)
	}
	if file == "" {
		return queries
	}
	f, err := os.Open(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening queries: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

func setupEmbedding(db *store.DB, cfg *config.Config) (port.Embedder, port.VectorStore, error) {
	var embedder port.Embedder
	switch cfg.Embedding.Provider {
	case "openai", "ollama":
		e, err := embedding.NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("embedder init failed: %w", err)
		}
		embedder = e
	case "hash":
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}

	vectorStore, err := store.NewBoltVectorStore(db, embedder.Dimension())
	if err != nil {
		return nil, nil, fmt.Errorf("vector store failed: %w", err)
	}

	count, _ := vectorStore.Count(context.Background())
	if count == 0 {
		return nil, nil, fmt.Errorf("no chunks - run 'docqa import' first")
	}

	return embedder, vectorStore, nil
}
