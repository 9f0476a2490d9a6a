package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
	"docqa/internal/retry"
)

// HybridRetriever runs the query-time pipeline: classify, expand, fetch dense
// candidates, fuse with an ephemeral BM25 index, rerank, cap per source,
// compress, truncate and dedup.
type HybridRetriever struct {
	store      port.VectorStore
	embedder   port.Embedder
	reranker   port.Reranker
	tokenizer  *analyzer.Tokenizer
	classifier *IntentClassifier
	expander   *QueryExpander
	compressor *Compressor
	cfg        config.RetrieveConfig
	retry      *retry.Retryer
	logger     *zap.Logger
}

// NewHybridRetriever creates a new hybrid retriever. A nil reranker falls
// back to term-overlap scoring.
func NewHybridRetriever(
	store port.VectorStore,
	embedder port.Embedder,
	reranker port.Reranker,
	tokenizer *analyzer.Tokenizer,
	cfg config.RetrieveConfig,
	retryer *retry.Retryer,
	logger *zap.Logger,
) *HybridRetriever {
	if reranker == nil {
		reranker = NewSimpleReranker(tokenizer)
	}
	return &HybridRetriever{
		store:      store,
		embedder:   embedder,
		reranker:   reranker,
		tokenizer:  tokenizer,
		classifier: NewIntentClassifier(tokenizer, cfg.SynthesisThreshold),
		expander:   NewQueryExpander(cfg.MaxQueryVariants),
		compressor: NewCompressor(tokenizer),
		cfg:        cfg,
		retry:      retryer,
		logger:     logging.OrNop(logger).Named("retriever"),
	}
}

// Classify exposes the intent classifier to callers that need the analysis
// without running a search.
func (r *HybridRetriever) Classify(query string) domain.QueryAnalysis {
	return r.classifier.Classify(query)
}

// DefaultStrategy returns the strategy built from configuration.
func (r *HybridRetriever) DefaultStrategy() domain.Strategy {
	return domain.Strategy{
		Name:                 "default",
		CandidateK:           r.cfg.CandidateK,
		MaxChunksPerFile:     r.cfg.MaxChunksPerFile,
		MaxResults:           r.cfg.MaxResults,
		CompressionEnabled:   r.cfg.CompressionEnabled,
		CompressionThreshold: r.cfg.CompressionThreshold,
		FuzzyDedupThreshold:  r.cfg.FuzzyDedupThreshold,
	}
}

// resolve fills unset strategy fields from configuration.
func (r *HybridRetriever) resolve(s domain.Strategy) domain.Strategy {
	def := r.DefaultStrategy()
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.CandidateK <= 0 {
		s.CandidateK = def.CandidateK
	}
	if s.MaxChunksPerFile <= 0 {
		s.MaxChunksPerFile = def.MaxChunksPerFile
	}
	if s.MaxResults <= 0 {
		s.MaxResults = def.MaxResults
	}
	if s.CompressionThreshold <= 0 {
		s.CompressionThreshold = def.CompressionThreshold
	}
	if s.FuzzyDedupThreshold <= 0 {
		s.FuzzyDedupThreshold = def.FuzzyDedupThreshold
	}
	return s
}

type candidate struct {
	chunk    domain.Chunk
	distance float64
	fused    float64
}

// Search runs one retrieval attempt.
func (r *HybridRetriever) Search(ctx context.Context, req domain.SearchRequest) domain.SearchOutcome {
	query := strings.TrimSpace(req.Query)
	var filter *domain.FolderFilter
	if strings.TrimSpace(req.Folder) != "" {
		filter = &domain.FolderFilter{Pattern: req.Folder}
	}

	if query == "" {
		if filter != nil {
			return r.listFolder(ctx, filter)
		}
		return domain.Empty("the search query was empty", "ask a question or name a folder to list")
	}

	strategy := r.resolve(req.Strategy)
	analysis := r.classifier.Classify(query)

	total, err := r.store.Count(ctx)
	if err != nil {
		return domain.Failed(fmt.Errorf("count vectors: %w", err))
	}
	if total == 0 {
		out := domain.Empty("no documents found: the index is empty", "index documents before searching")
		out.Analysis = analysis
		return out
	}

	variants := []string{query}
	if analysis.Synthesis || strategy.ForceMultiQuery {
		variants = r.expander.Decompose(query)
	}

	candidateK := strategy.CandidateK
	if analysis.Synthesis {
		candidateK += candidateK / 2
	}

	candidates, err := r.fetchCandidates(ctx, variants, candidateK, filter)
	if err != nil {
		return domain.Failed(err)
	}
	if len(candidates) == 0 {
		var out domain.SearchOutcome
		if filter != nil {
			out = r.noFolderMatch(ctx, filter.Pattern)
		} else {
			out = domain.Empty("no relevant documents found", "try rephrasing the question")
		}
		out.Analysis = analysis
		return out
	}

	r.fuse(candidates, r.expander.Expand(query), len(variants) == 1)

	topN := r.cfg.RerankTopN
	if topN <= 0 {
		topN = 40
	}
	if analysis.Synthesis {
		topN *= 2
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	ranked, err := r.rerank(ctx, query, candidates)
	if err != nil {
		return domain.Failed(err)
	}
	ranked = capPerSource(ranked, strategy.MaxChunksPerFile)

	limit := strategy.MaxResults
	if analysis.Synthesis && limit < r.cfg.SynthesisMaxResults {
		limit = r.cfg.SynthesisMaxResults
	}
	chunks, snippets := r.snippets(query, ranked, strategy, analysis.Synthesis, limit)

	out := domain.Found(chunks, snippets)
	out.Analysis = analysis
	out.UniqueSources = uniqueSources(snippets)
	if analysis.Synthesis && out.UniqueSources < r.cfg.MinSynthesisSources {
		out.LowConfidence = true
		out.Warning = fmt.Sprintf("only %d distinct source(s) found; the answer may be incomplete", out.UniqueSources)
	}

	r.logger.Debug("retrieval done",
		zap.String("strategy", strategy.Name),
		zap.String("intent", string(analysis.Intent)),
		zap.Int("variants", len(variants)),
		zap.Int("snippets", len(snippets)),
		zap.Int("sources", out.UniqueSources),
	)
	return out
}

// fetchCandidates embeds and queries every variant concurrently, then merges
// the hits, dropping exact-text duplicates and keeping the closest distance.
func (r *HybridRetriever) fetchCandidates(ctx context.Context, variants []string, k int, filter *domain.FolderFilter) ([]*candidate, error) {
	perVariant := make([][]port.VectorResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			vec, err := retry.Do(gctx, r.retry, "embed_query", func(ctx context.Context) ([]float32, error) {
				return r.embedder.EmbedQuery(ctx, v)
			})
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}
			hits, err := retry.Do(gctx, r.retry, "vector_query", func(ctx context.Context) ([]port.VectorResult, error) {
				return r.store.Query(ctx, vec, k, filter)
			})
			if err != nil {
				return fmt.Errorf("vector query: %w", err)
			}
			perVariant[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byText := make(map[string]*candidate)
	var merged []*candidate
	for _, hits := range perVariant {
		for _, h := range hits {
			if c, ok := byText[h.Text]; ok {
				if h.Distance < c.distance {
					c.distance = h.Distance
				}
				continue
			}
			c := &candidate{
				chunk:    domain.ChunkFromMetadata(h.ID, h.Text, h.Metadata),
				distance: h.Distance,
			}
			byText[h.Text] = c
			merged = append(merged, c)
		}
	}
	return merged, nil
}

// fuse scores candidates and sorts them. With a single variant the score is
// a weighted sum of normalized lexical and dense scores; with several
// variants dense distances come from different query vectors and are not
// comparable, so only the lexical score is used.
func (r *HybridRetriever) fuse(candidates []*candidate, expandedQuery string, singleVariant bool) {
	texts := make([]string, len(candidates))
	dense := make([]float64, len(candidates))
	for i, c := range candidates {
		texts[i] = c.chunk.Text
		dense[i] = 1 - c.distance
	}

	index := NewBM25Index(r.tokenizer, texts, r.cfg.K1, r.cfg.B)
	lexical := minMaxNormalize(index.Scores(expandedQuery))

	if singleVariant {
		dense = minMaxNormalize(dense)
		w := r.cfg.LexicalWeight
		for i, c := range candidates {
			c.fused = w*lexical[i] + (1-w)*dense[i]
		}
	} else {
		for i, c := range candidates {
			c.fused = lexical[i]
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].fused > candidates[j].fused
	})
}

// rerank scores candidates against the original, unexpanded query.
func (r *HybridRetriever) rerank(ctx context.Context, query string, candidates []*candidate) ([]domain.ScoredChunk, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.chunk.Text
	}

	reranked, err := retry.Do(ctx, r.retry, "rerank", func(ctx context.Context) ([]port.RerankedResult, error) {
		return r.reranker.Rerank(ctx, query, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	results := make([]domain.ScoredChunk, 0, len(reranked))
	seen := make(map[int]struct{}, len(reranked))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(candidates) {
			continue
		}
		if _, dup := seen[rr.Index]; dup {
			continue
		}
		seen[rr.Index] = struct{}{}
		results = append(results, domain.ScoredChunk{
			Chunk: candidates[rr.Index].chunk,
			Score: clamp01(rr.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// snippets compresses, truncates and dedups the ranked chunks, returning at
// most limit chunks with their matching snippets.
func (r *HybridRetriever) snippets(query string, ranked []domain.ScoredChunk, s domain.Strategy, synthesis bool, limit int) ([]domain.ScoredChunk, []domain.Snippet) {
	budget := r.cfg.SnippetBudget
	if synthesis && r.cfg.SynthesisBudgetScale > 0 {
		budget = int(float64(budget) * r.cfg.SynthesisBudgetScale)
	}

	all := make([]domain.Snippet, len(ranked))
	for i, sc := range ranked {
		text := sc.Chunk.Text
		if s.CompressionEnabled {
			text = r.compressor.Compress(query, text, s.CompressionThreshold)
		}
		all[i] = domain.Snippet{
			SourcePath: sc.Chunk.SourcePath,
			Snippet:    truncate(strings.TrimSpace(text), budget),
			Relevance:  sc.Score,
			ChunkIndex: sc.Chunk.ChunkIndex,
		}
	}

	deduped := fuzzyDedup(all, s.FuzzyDedupThreshold)
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}

	// fuzzyDedup preserves order, so chunks can be matched by walking both lists.
	chunks := make([]domain.ScoredChunk, 0, len(deduped))
	j := 0
	for i := range all {
		if j == len(deduped) {
			break
		}
		if all[i] == deduped[j] {
			chunks = append(chunks, ranked[i])
			j++
		}
	}
	return chunks, deduped
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
