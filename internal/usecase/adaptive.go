package usecase

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"docqa/config"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/port"
)

const maxCandidateK = 1000

// StrategyRetriever is a retriever that exposes its baseline strategy.
type StrategyRetriever interface {
	port.Retriever
	DefaultStrategy() domain.Strategy
}

// AdaptiveRetrieveUseCase wraps retrieval with a bounded assess-and-retry
// loop. Each round diagnoses the weakest quality dimension and adapts the
// strategy before searching again.
type AdaptiveRetrieveUseCase struct {
	retriever StrategyRetriever
	assessor  *QualityAssessor
	cfg       config.AdaptiveConfig
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewAdaptiveRetrieveUseCase(
	retriever StrategyRetriever,
	assessor *QualityAssessor,
	cfg config.AdaptiveConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *AdaptiveRetrieveUseCase {
	return &AdaptiveRetrieveUseCase{
		retriever: retriever,
		assessor:  assessor,
		cfg:       cfg,
		metrics:   collector,
		logger:    logging.OrNop(logger).With(zap.String("component", "adaptive")),
	}
}

// Retrieve returns the best-scoring result across at most MaxIterations
// attempts. Folder listings, empty outcomes and failures end the loop at
// once; a failure after an attempt with evidence returns that evidence.
func (u *AdaptiveRetrieveUseCase) Retrieve(ctx context.Context, req domain.SearchRequest) domain.RetrievalResult {
	strategy := req.Strategy
	if strategy.Name == "" {
		strategy = u.retriever.DefaultStrategy()
	}

	maxIter := u.cfg.MaxIterations
	if !u.cfg.Enabled || strings.TrimSpace(req.Query) == "" || maxIter < 1 {
		maxIter = 1
	}
	threshold := u.cfg.QualityThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	var best *domain.RetrievalResult
	iterations := 0
	for iterations < maxIter {
		iterations++
		attempt := req
		attempt.Strategy = strategy
		outcome := u.retriever.Search(ctx, attempt)

		if outcome.Status != domain.OutcomeOK {
			if best != nil && best.Outcome.HasEvidence() {
				break
			}
			r := domain.RetrievalResult{Outcome: outcome, Strategy: strategy.Name}
			best = &r
			break
		}

		result := u.assessor.Assess(req.Query, outcome, strategy.Name)
		u.logger.Debug("retrieval assessed",
			zap.Int("iteration", iterations),
			zap.String("strategy", strategy.Name),
			zap.Float64("quality", result.QualityScore),
			zap.Float64("relevance", result.Relevance),
			zap.Float64("coverage", result.Coverage),
			zap.Float64("sufficiency", result.Sufficiency),
			zap.Float64("diversity", result.Diversity),
		)
		if best == nil || result.QualityScore > best.QualityScore {
			best = &result
		}
		if result.QualityScore >= threshold {
			break
		}
		strategy = adapt(strategy, result, iterations)
	}

	best.Iterations = iterations
	u.metrics.Retrieval(best.Strategy, best.QualityScore, iterations)
	return *best
}

// adapt derives the next strategy from the weakest dimension of result.
func adapt(s domain.Strategy, result domain.RetrievalResult, iteration int) domain.Strategy {
	analysis := result.Outcome.Analysis
	exp := expectationFor(analysis.Intent)

	weakest, lowest := "", math.Inf(1)
	diagnose := func(name string, value float64) {
		if value < lowest {
			weakest, lowest = name, value
		}
	}
	if result.Coverage < 0.6 {
		diagnose("coverage", result.Coverage)
	}
	if analysis.Intent.MultiSource() && result.Diversity < 0.5 {
		diagnose("diversity", result.Diversity)
	}
	if n := len(result.Outcome.Snippets); n < exp.chunks {
		diagnose("volume", float64(n)/float64(exp.chunks))
	}

	next := s
	switch weakest {
	case "coverage":
		next.Name = "broadened"
		next.CandidateK = widen(s.CandidateK, 2)
		next.MaxChunksPerFile = s.MaxChunksPerFile + 2
		next.ForceMultiQuery = true
	case "diversity":
		next.Name = "diversified"
		next.CandidateK = widen(s.CandidateK, 1.5)
		next.MaxChunksPerFile = max(1, s.MaxChunksPerFile/2)
	case "volume":
		next.Name = "expanded"
		next.CandidateK = widen(s.CandidateK, 2)
		next.MaxResults = s.MaxResults + 5
		next.CompressionEnabled = false
		next.FuzzyDedupThreshold = 0.95
	default:
		if iteration >= 2 {
			next = permissive(s)
		} else {
			next.Name = "alternative"
			next.CandidateK = widen(s.CandidateK, 2)
			next.ForceMultiQuery = !s.ForceMultiQuery
		}
	}
	return next
}

// permissive relaxes every filter the pipeline applies.
func permissive(s domain.Strategy) domain.Strategy {
	results := s.MaxResults + 10
	return domain.Strategy{
		Name:                 "permissive",
		CandidateK:           widen(s.CandidateK, 3),
		MaxChunksPerFile:     results,
		MaxResults:           results,
		ForceMultiQuery:      true,
		CompressionEnabled:   false,
		CompressionThreshold: s.CompressionThreshold,
		FuzzyDedupThreshold:  0.98,
	}
}

func widen(k int, factor float64) int {
	if k <= 0 {
		k = 100
	}
	n := int(float64(k) * factor)
	if n > maxCandidateK {
		return maxCandidateK
	}
	return n
}
