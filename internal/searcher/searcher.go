package searcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/rulecontext-mcp/internal/answer"
	"github.com/dshills/rulecontext-mcp/internal/embedder"
	"github.com/dshills/rulecontext-mcp/internal/keyword"
	"github.com/dshills/rulecontext-mcp/internal/normalizer"
	"github.com/dshills/rulecontext-mcp/internal/ranking"
	"github.com/dshills/rulecontext-mcp/internal/storage"
	"github.com/dshills/rulecontext-mcp/internal/vectorstore"
	"github.com/dshills/rulecontext-mcp/pkg/types"
)

// DefaultEmbedTimeout bounds the query embedding call
const DefaultEmbedTimeout = 10 * time.Second

// ErrNoCatalogue is returned by NewSearcher without a catalogue
var ErrNoCatalogue = errors.New("searcher requires a rule catalogue")

// Options configures a Searcher. Only Catalogue is required: without an
// embedder or vector store the searcher runs keyword-only.
type Options struct {
	Catalogue        storage.Catalogue
	Vectors          vectorstore.VectorStore
	Embedder         embedder.Embedder
	Cache            *embedder.QueryCache
	Keywords         *keyword.Matcher
	Generator        answer.Generator
	Policy           *ranking.Policy
	EmbedTimeout     time.Duration
	GeneratorTimeout time.Duration
	Logger           *zap.Logger
}

// Searcher answers questions about business rules by merging semantic and
// keyword retrieval. It never writes and is safe for concurrent use.
type Searcher struct {
	catalogue    storage.Catalogue
	vectors      vectorstore.VectorStore
	embedder     embedder.Embedder
	cache        *embedder.QueryCache
	keywords     *keyword.Matcher
	assembler    *answer.Assembler
	policy       ranking.Policy
	embedTimeout time.Duration
	logger       *zap.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(opts Options) (*Searcher, error) {
	if opts.Catalogue == nil {
		return nil, ErrNoCatalogue
	}

	policy := ranking.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &Searcher{
		catalogue:    opts.Catalogue,
		vectors:      opts.Vectors,
		embedder:     opts.Embedder,
		cache:        opts.Cache,
		keywords:     opts.Keywords,
		policy:       policy,
		embedTimeout: opts.EmbedTimeout,
		logger:       opts.Logger,
	}
	if s.cache == nil {
		s.cache = embedder.NewQueryCache()
	}
	if s.keywords == nil {
		s.keywords = keyword.Default()
	}
	if s.embedTimeout <= 0 {
		s.embedTimeout = DefaultEmbedTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.assembler = answer.NewAssembler(opts.Catalogue, opts.Generator, opts.GeneratorTimeout, s.logger)

	return s, nil
}

// Search answers a retrieval request. Only invalid input and an unreadable
// catalogue are returned as errors; every other failure degrades.
func (s *Searcher) Search(ctx context.Context, req types.RetrievalRequest) (*types.RetrievalResponse, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval request: %w", err)
	}

	catalogue, err := s.catalogue.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalogue: %w", err)
	}

	scope, catalogue, err := s.applyProjectScope(ctx, req.ProjectID, catalogue)
	if err != nil {
		return nil, err
	}

	normalized := normalizer.Normalize(req.Question)

	var semantic map[string]float64
	var keywordHits map[string]keyword.Result

	// Neither branch returns an error, failures degrade inside
	var g errgroup.Group
	g.Go(func() error {
		semantic = s.semanticHits(ctx, req.Question, normalized, 2*req.MaxSources)
		return nil
	})
	g.Go(func() error {
		keywordHits = s.keywords.MatchAll(catalogue, normalized)
		return nil
	})
	_ = g.Wait()

	candidates, usedFallback := s.policy.Merge(catalogue, semantic, keywordHits)
	if usedFallback {
		s.logger.Debug("no rule retrieved, using fallback selection",
			zap.Int("fallback_size", len(candidates)))
	}

	ranked := s.policy.Rank(candidates, s.incidentCounts(ctx, candidates), req.MaxSources, usedFallback)
	result := s.assembler.Assemble(ctx, req.Question, req.Focus, ranked, usedFallback)

	response := &types.RetrievalResponse{
		Answer:          result.Answer,
		Confidence:      result.Confidence,
		Sources:         ranking.Sources(ranked),
		RuleScores:      ranking.ScoreDetails(ranked),
		UsedFallback:    usedFallback,
		AnswerGenerated: result.Generated,
		Disclaimer:      answer.Disclaimer,
		ProjectScope:    scope,
	}

	s.logger.Debug("retrieval complete",
		zap.String("question", normalized),
		zap.Int("semantic_hits", len(semantic)),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("sources", len(response.Sources)),
		zap.Bool("used_fallback", usedFallback),
		zap.Duration("duration", time.Since(startTime)))

	return response, nil
}

// applyProjectScope restricts the catalogue to the project's allow-list. An
// empty project ID leaves it untouched.
func (s *Searcher) applyProjectScope(ctx context.Context, projectID string, catalogue []*types.BusinessRule) (*types.ProjectScope, []*types.BusinessRule, error) {
	if projectID == "" {
		return nil, catalogue, nil
	}

	id, err := uuid.Parse(projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q is not a valid project ID", types.ErrProjectNotFound, projectID)
	}

	project, err := s.catalogue.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}

	allowed, err := s.catalogue.AllowedRuleIDs(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules of project %s: %w", projectID, err)
	}

	scoped := ranking.ScopeCatalogue(catalogue, allowed)
	return &types.ProjectScope{
		ProjectID:    project.ID.String(),
		ProjectName:  project.Name,
		AllowedRules: len(scoped),
	}, scoped, nil
}

// semanticHits embeds the question and returns clamped cosine scores for the
// k nearest rules. Any failure yields no hits so retrieval continues on
// keywords alone.
func (s *Searcher) semanticHits(ctx context.Context, question, cacheKey string, k int) map[string]float64 {
	if s.embedder == nil || s.vectors == nil {
		return nil
	}

	queryVector, _, err := s.cache.GetOrCompute(ctx, cacheKey, func(ctx context.Context) ([]float32, error) {
		embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()

		// The provider gets the raw question; only the cache key is normalized
		emb, err := s.embedder.GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: question})
		if err != nil {
			return nil, err
		}
		return emb.Vector, nil
	})
	if err != nil {
		s.logger.Warn("query embedding failed, continuing with keyword retrieval only", zap.Error(err))
		return nil
	}

	ids, err := s.vectors.FindTopK(ctx, queryVector, k)
	if err != nil {
		s.logger.Warn("vector search failed, continuing with keyword retrieval only", zap.Error(err))
		return nil
	}

	hits := make(map[string]float64, len(ids))
	for _, id := range ids {
		stored, ok, err := s.vectors.GetEmbedding(ctx, id)
		if err != nil {
			s.logger.Warn("vector lookup failed, continuing with keyword retrieval only",
				zap.String("rule_id", id), zap.Error(err))
			return nil
		}
		if !ok {
			continue
		}
		// Scores are recomputed here so ranking never depends on the store's metric
		hits[id] = vectorstore.Relevance(vectorstore.CosineSimilarity(queryVector, stored))
	}
	return hits
}

// incidentCounts loads incident counts for the candidates. On failure every
// rule is ranked as if it had no incidents.
func (s *Searcher) incidentCounts(ctx context.Context, candidates []ranking.Candidate) map[string]int {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Rule.ID
	}

	counts, err := s.catalogue.CountIncidents(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to count incidents, ranking by criticality only", zap.Error(err))
		return nil
	}
	return counts
}

// CacheStats reports the query embedding cache size and hit counters
func (s *Searcher) CacheStats() (entries int, hits, misses int64) {
	hits, misses = s.cache.Stats()
	return s.cache.Len(), hits, misses
}

// Policy returns the ranking policy in use
func (s *Searcher) Policy() ranking.Policy {
	return s.policy
}
