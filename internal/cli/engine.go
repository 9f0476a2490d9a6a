package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/livesearch"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/memstore"
	"docqa/internal/adapter/retriever"
	"docqa/internal/adapter/store"
	"docqa/internal/agent"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/port"
	"docqa/internal/retry"
	"docqa/internal/usecase"
)

// memoryStorePath selects the in-process vector store.
const memoryStorePath = "memory"

// engine is the fully wired question answering stack for one command.
type engine struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *store.DB
	vectorDB  *store.DB
	redis     *redis.Client
	metricSrv *http.Server
	stop      context.CancelFunc

	metrics   *metrics.Collector
	retry     *retry.Retryer
	tokenizer *analyzer.Tokenizer
	embedder  port.Embedder
	vectors   port.VectorStore
	retriever *retriever.HybridRetriever
	adaptive  *usecase.AdaptiveRetrieveUseCase
	cache     *cache.QueryCache
	importer  *usecase.ImportUseCase
	query     *usecase.QueryService
}

type engineOptions struct {
	// withAgent wires the chat model, toolbox and query service.
	withAgent bool
	// serveMetrics starts the Prometheus endpoint when one is configured.
	serveMetrics bool
}

func newEngine(ctx context.Context, dir string, cfg *config.Config, logger *zap.Logger, opts engineOptions) (_ *engine, err error) {
	logger = logging.OrNop(logger)
	e := &engine{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	e.db, err = store.Open(config.DataPath(dir))
	if err != nil {
		return nil, err
	}
	migration, err := e.db.Migrate(cfg)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	if migration.NeedsReindex {
		logger.Warn("stored vectors were built with a different embedding configuration; re-import them",
			zap.String("reason", migration.Reason))
	} else if migration.Reason != "" {
		logger.Debug("schema migrated", zap.String("reason", migration.Reason))
	}

	if opts.serveMetrics && cfg.Metrics.Addr != "" {
		e.startMetrics(cfg.Metrics.Addr)
	}

	e.retry = retry.New(retry.FromConfig(cfg.Retry), logger)
	e.tokenizer = analyzer.NewTokenizer(true)

	if e.embedder, err = newEmbedder(cfg.Embedding); err != nil {
		return nil, err
	}
	if e.vectors, err = e.openVectors(dir); err != nil {
		return nil, err
	}

	reranker, err := newReranker(cfg.Reranker)
	if err != nil {
		return nil, err
	}
	e.retriever = retriever.NewHybridRetriever(e.vectors, e.embedder, reranker, e.tokenizer, cfg.Retrieve, e.retry, logger)
	e.adaptive = usecase.NewAdaptiveRetrieveUseCase(
		e.retriever,
		usecase.NewQualityAssessor(e.tokenizer, cfg.Adaptive),
		cfg.Adaptive,
		e.metrics,
		logger,
	)
	e.importer = usecase.NewImportUseCase(e.vectors, e.embedder, e.retry, 64, logger)

	if cfg.Cache.Enabled {
		cacheStore, err := e.cacheStore(ctx)
		if err != nil {
			return nil, err
		}
		e.cache = cache.New(cfg.Cache, e.embedder, cacheStore, e.metrics, logger)
		if n, err := e.cache.Restore(ctx); err != nil {
			logger.Warn("failed to restore cached answers", zap.Error(err))
		} else if n > 0 {
			logger.Debug("restored cached answers", zap.Int("count", n))
		}
		sweepCtx, stop := context.WithCancel(context.Background())
		e.stop = stop
		e.cache.StartSweeper(sweepCtx, cfg.Cache.SweepInterval)
	}

	if opts.withAgent {
		model, err := llm.NewOpenAIChatModel(cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		toolbox := agent.NewToolbox(e.adaptive, e.liveSearcher(), logger)
		orchestrator := agent.NewOrchestrator(model, toolbox, cfg.Agent, e.retry, e.metrics, logger)

		// A nil *QueryCache inside the interface would not read as "no cache".
		var responses usecase.ResponseCache
		if e.cache != nil {
			responses = e.cache
		}
		e.query = usecase.NewQueryService(responses, orchestrator, e.retriever, e.metrics, logger)
	}
	return e, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "openai", "ollama":
		emb, err := embedding.NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return emb, nil
	case "hash":
		return embedding.NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// newReranker returns nil for the term-overlap fallback.
func newReranker(cfg config.RerankerConfig) (port.Reranker, error) {
	switch cfg.Provider {
	case "cohere":
		r, err := retriever.NewCohereReranker(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create reranker: %w", err)
		}
		return r, nil
	case "", "simple", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported reranker provider: %s", cfg.Provider)
	}
}

func (e *engine) openVectors(dir string) (port.VectorStore, error) {
	switch e.cfg.Store.Path {
	case memoryStorePath:
		return memstore.NewMemoryVectorStore(e.embedder.Dimension()), nil
	case "", config.DataPath(dir):
		return store.NewBoltVectorStore(e.db, e.embedder.Dimension())
	}
	db, err := store.Open(e.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	e.vectorDB = db
	return store.NewBoltVectorStore(db, e.embedder.Dimension())
}

func (e *engine) cacheStore(ctx context.Context) (port.CacheStore, error) {
	switch e.cfg.Cache.Backend {
	case "bolt":
		return store.NewBoltCacheStore(e.db, e.logger), nil
	case "redis":
		e.redis = redis.NewClient(&redis.Options{Addr: e.cfg.Cache.RedisAddr})
		if err := e.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", e.cfg.Cache.RedisAddr, err)
		}
		return store.NewRedisCacheStore(e.redis, e.cfg.Cache.RedisKey, e.logger), nil
	default:
		return nil, nil
	}
}

func (e *engine) liveSearcher() port.LiveSearcher {
	if e.cfg.LiveSearch.Endpoint != "" {
		return livesearch.NewHTTPSearcher(e.cfg.LiveSearch)
	}
	return livesearch.NewCatalogSearcher(e.vectors, e.cfg.LiveSearch.MaxResults, e.cfg.Retrieve.FolderListingLimit)
}

func (e *engine) startMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.NewCollector("docqa", reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.metricSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.metricSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("addr", addr))
}

func (e *engine) Close() {
	if e.stop != nil {
		e.stop()
	}
	if e.metricSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = e.metricSrv.Shutdown(ctx)
		cancel()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.vectorDB != nil {
		_ = e.vectorDB.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
}
