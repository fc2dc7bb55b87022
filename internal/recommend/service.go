// Package recommend orchestrates the matching pipeline: candidate lookup,
// eligibility filtering, scoring, rule adjustment, ranking, pagination and
// caching. All collaborators are injected; the package owns no globals.
package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/david/grant-matcher/internal/ai"
	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
	"github.com/david/grant-matcher/internal/similarity"
)

const (
	// DefaultTTL is how long a computed recommendation page stays cached.
	DefaultTTL = 3600 * time.Second

	// DefaultLimit is the page size when the caller does not specify one.
	DefaultLimit = 10

	maxLimit           = 100
	defaultParallelism = 8

	recommendationPrefix = "recommendations:"
	profileEmbeddingKey  = "profile_embedding:"
)

// GrantSource supplies coarsely pre-filtered candidates. *db.Store satisfies
// it; tests substitute an in-memory fake.
type GrantSource interface {
	ListGrants(ctx context.Context, q db.GrantQuery) ([]models.Grant, error)
}

// Explainer turns a scored match into applicant-facing prose. Optional; when
// absent or failing, the locally built reasons stand.
type Explainer interface {
	ExplainMatch(ctx context.Context, grantTitle, grantDescription, profileSummary string) ([]string, error)
}

type Service struct {
	grants    GrantSource
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	embedder  ai.Embedder
	explainer Explainer
	rules     []match.Rule
	logger    *zap.Logger

	ttl         time.Duration
	parallelism int

	// subjects serializes cache writes against Refresh for the same
	// subject so an invalidation cannot race a stale write-back.
	subjects sync.Map
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

func WithEmbedder(e ai.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

func WithExplainer(e Explainer) Option {
	return func(s *Service) { s.explainer = e }
}

func WithRules(rules []match.Rule) Option {
	return func(s *Service) { s.rules = rules }
}

func New(grants GrantSource, c *cache.Cache, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		grants:      grants,
		cache:       c,
		limiter:     limiter,
		logger:      logger,
		ttl:         DefaultTTL,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes one recommendation query. SubjectKey identifies the
// applicant for caching and invalidation; it is typically a user or session
// ID and never interpreted beyond string equality.
type Request struct {
	SubjectKey string
	Profile    models.ApplicantProfile
	Filters    match.FilterConstraints
	Weights    *models.MatchWeights
	Page       int
	Limit      int

	// Explain asks the generation model to rewrite the reasons for the
	// returned page. Best-effort and off by default.
	Explain bool
}

type Result struct {
	Items   []models.ScoredMatch `json:"items"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
	HasMore bool                 `json:"has_more"`
	Cached  bool                 `json:"cached"`
}

// GetRecommendations runs the full pipeline for one request. A cache hit
// short-circuits before any grant is loaded. An empty candidate set is a
// valid empty result, not an error.
func (s *Service) GetRecommendations(ctx context.Context, req Request) (*Result, error) {
	if req.SubjectKey == "" {
		return nil, match.Validationf("subject key is required")
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = DefaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	weights := models.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}
	if err := match.ValidateWeights(weights); err != nil {
		return nil, err
	}

	key, err := s.cacheKey(req, weights)
	if err != nil {
		return nil, match.E(match.KindInternal, "cache_check", err)
	}

	var cached Result
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, match.E(match.KindInternal, "cache_check", err)
	}
	if hit {
		cached.Cached = true
		return &cached, nil
	}

	candidates, err := s.grants.ListGrants(ctx, db.GrantQuery{
		Status:     models.StatusActive,
		Categories: req.Filters.Categories,
		MinAmount:  req.Filters.MinAmount,
		MaxAmount:  req.Filters.MaxAmount,
	})
	if err != nil {
		return nil, match.E(match.KindUpstreamFailure, "filtering", err)
	}

	eligible := match.Filter(candidates, req.Filters)

	scored, err := s.score(ctx, req, weights, eligible)
	if err != nil {
		return nil, err
	}

	match.Rank(scored)
	items, total, hasMore := match.Paginate(scored, req.Page, req.Limit)

	if req.Explain && s.explainer != nil {
		s.explain(ctx, req.Profile, items)
	}

	result := &Result{
		Items:   items,
		Total:   total,
		Page:    req.Page,
		Limit:   req.Limit,
		HasMore: hasMore,
	}

	mu := s.subjectLock(req.SubjectKey)
	mu.Lock()
	err = s.cache.Set(ctx, key, result, s.ttl)
	mu.Unlock()
	if err != nil {
		s.logger.Warn("recommendation cache write failed",
			zap.String("subject", req.SubjectKey), zap.Error(err))
	}

	return result, nil
}

// Refresh drops every cached page and the memoized profile embedding for the
// subject. The next request recomputes from the filtering stage onward.
func (s *Service) Refresh(ctx context.Context, subjectKey string) (int, error) {
	if subjectKey == "" {
		return 0, match.Validationf("subject key is required")
	}

	mu := s.subjectLock(subjectKey)
	mu.Lock()
	defer mu.Unlock()

	deleted, err := s.cache.DeletePattern(ctx, recommendationPrefix+subjectKey+":")
	if err != nil {
		return 0, match.E(match.KindInternal, "cache_invalidate", err)
	}
	if err := s.cache.Delete(ctx, profileEmbeddingKey+subjectKey); err != nil {
		s.logger.Warn("profile embedding invalidation failed",
			zap.String("subject", subjectKey), zap.Error(err))
	}
	return deleted, nil
}

// score computes composite scores concurrently with bounded parallelism. The
// rate limiter is the only serialization point in front of the embedder; a
// cancelled context aborts the whole batch so partial results never get
// ranked or cached.
func (s *Service) score(ctx context.Context, req Request, weights models.MatchWeights, grants []models.Grant) ([]models.ScoredMatch, error) {
	if len(grants) == 0 {
		return []models.ScoredMatch{}, nil
	}

	mission := match.MissionText(req.Profile)
	profileVec := s.profileEmbedding(ctx, req.SubjectKey, mission)

	scored := make([]models.ScoredMatch, len(grants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i, grant := range grants {
		i, grant := i, grant
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			semantic := s.semanticScore(grant, profileVec, mission)
			score, dims := match.CompositeScore(grant, req.Profile, weights, semantic)
			score = match.ApplyRules(s.logger, s.rules, grant, req.Profile, score)

			scored[i] = models.ScoredMatch{
				Grant:      grant,
				Score:      score,
				Reasons:    match.BuildReasons(grant, req.Profile, dims),
				Dimensions: dims,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, match.E(match.KindUpstreamTimeout, "scoring", err)
		}
		return nil, match.E(match.KindInternal, "scoring", err)
	}
	return scored, nil
}

// semanticScore picks the best available signal for the semantic dimension:
// stored vector against the profile vector when both exist, otherwise a
// local text cosine. Returns nil when the profile has no text at all, which
// excludes the dimension from the weighted mean.
func (s *Service) semanticScore(grant models.Grant, profileVec []float32, mission string) *float64 {
	if mission == "" {
		return nil
	}

	var v float64
	if profileVec != nil && len(grant.Embedding) > 0 {
		v = similarity.Vector(profileVec, grant.Embedding)
	} else {
		v = similarity.Text(grant.Description, mission)
	}
	return &v
}

// profileEmbedding returns the applicant's mission embedding, memoized in
// the cache under the subject key. Any failure (no embedder, rate limit,
// upstream down) degrades to nil and the scorer falls back to text cosine.
func (s *Service) profileEmbedding(ctx context.Context, subjectKey, mission string) []float32 {
	if s.embedder == nil || mission == "" {
		return nil
	}

	key := profileEmbeddingKey + subjectKey
	var vec []float32
	if hit, err := s.cache.Get(ctx, key, &vec); err == nil && hit && len(vec) > 0 {
		return vec
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.logger.Warn("embedding call throttled, falling back to text similarity",
			zap.String("subject", subjectKey), zap.Error(err))
		return nil
	}

	vec, err := s.embedder.GenerateEmbedding(ctx, mission)
	if err != nil {
		s.logger.Warn("profile embedding failed, falling back to text similarity",
			zap.String("subject", subjectKey), zap.Error(err))
		return nil
	}

	if err := s.cache.Set(ctx, key, vec, s.ttl); err != nil {
		s.logger.Warn("profile embedding cache write failed",
			zap.String("subject", subjectKey), zap.Error(err))
	}
	return vec
}

// explain rewrites reasons for the returned page via the generation model.
// Strictly best-effort: throttling or upstream failure keeps the local
// reasons.
func (s *Service) explain(ctx context.Context, p models.ApplicantProfile, items []models.ScoredMatch) {
	for i := range items {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.logger.Warn("explanation throttled", zap.Error(err))
			return
		}
		reasons, err := s.explainer.ExplainMatch(ctx, items[i].Grant.Title, items[i].Grant.Description, p.Summary)
		if err != nil || len(reasons) == 0 {
			s.logger.Warn("explanation failed", zap.String("grant_id", items[i].Grant.ID.String()), zap.Error(err))
			continue
		}
		items[i].Reasons = reasons
	}
}

func (s *Service) subjectLock(subjectKey string) *sync.Mutex {
	mu, _ := s.subjects.LoadOrStore(subjectKey, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// cacheKey builds recommendations:<subject>:<hash>:<page>:<limit>. The hash
// covers everything besides pagination that influences the result set, so
// two requests collide only when they would compute identical rankings.
func (s *Service) cacheKey(req Request, weights models.MatchWeights) (string, error) {
	payload, err := json.Marshal(struct {
		Filters match.FilterConstraints `json:"filters"`
		Weights models.MatchWeights     `json:"weights"`
		Profile models.ApplicantProfile `json:"profile"`
		Explain bool                    `json:"explain"`
	}{req.Filters, weights, req.Profile, req.Explain})
	if err != nil {
		return "", fmt.Errorf("cache key encoding failed: %w", err)
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:8])
	return fmt.Sprintf("%s%s:%s:%d:%d", recommendationPrefix, req.SubjectKey, hash, req.Page, req.Limit), nil
}
