package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/ai"
	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
)

type fakeStore struct {
	grants []models.Grant
	calls  atomic.Int64
	err    error
}

func (f *fakeStore) ListGrants(ctx context.Context, q db.GrantQuery) ([]models.Grant, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.grants, nil
}

type fakeEmbedder struct {
	calls atomic.Int64
	vec   []float32
	err   error
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func newTestService(t *testing.T, store *fakeStore, opts ...Option) *Service {
	t.Helper()

	c, err := cache.Open("", zap.NewNop())
	if err != nil {
		t.Fatalf("cache open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	limiter := ratelimit.New(100, time.Minute, time.Second)
	t.Cleanup(limiter.Stop)

	return New(store, c, limiter, zap.NewNop(), opts...)
}

func activeGrant(title string, categories ...string) models.Grant {
	return models.Grant{
		ID:             uuid.New(),
		Title:          title,
		Description:    title + " supports community projects",
		ApplicationURL: "https://example.org/" + uuid.NewString(),
		Amount:         models.Amount{Min: 10000, Max: 50000, Currency: "USD"},
		Categories:     categories,
		Status:         models.StatusActive,
	}
}

func baseRequest(subject string) Request {
	return Request{
		SubjectKey: subject,
		Profile: models.ApplicantProfile{
			Summary: "community health projects",
			Preferences: models.Preferences{
				Categories: []string{"Healthcare"},
			},
		},
	}
}

func TestGetRecommendationsCacheHit(t *testing.T) {
	store := &fakeStore{grants: []models.Grant{
		activeGrant("Health Fund", "Healthcare"),
		activeGrant("Arts Fund", "Arts"),
	}}
	svc := newTestService(t, store)

	first, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if first.Cached {
		t.Error("first request should not be served from cache")
	}

	second, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if !second.Cached {
		t.Error("second request should be served from cache")
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store queried %d times, want 1", got)
	}
	if second.Total != first.Total || len(second.Items) != len(first.Items) {
		t.Errorf("cached result diverged: %d/%d vs %d/%d",
			second.Total, len(second.Items), first.Total, len(first.Items))
	}
}

func TestRefreshInvalidatesSubject(t *testing.T) {
	store := &fakeStore{grants: []models.Grant{activeGrant("Health Fund", "Healthcare")}}
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.GetRecommendations(ctx, baseRequest("u1")); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	if _, err := svc.GetRecommendations(ctx, baseRequest("u2")); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	deleted, err := svc.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d entries, want 1", deleted)
	}

	res, err := svc.GetRecommendations(ctx, baseRequest("u1"))
	if err != nil {
		t.Fatalf("post-refresh request: %v", err)
	}
	if res.Cached {
		t.Error("refreshed subject should recompute, not hit cache")
	}

	other, err := svc.GetRecommendations(ctx, baseRequest("u2"))
	if err != nil {
		t.Fatalf("other subject: %v", err)
	}
	if !other.Cached {
		t.Error("refresh must not evict other subjects")
	}
}

func TestGetRecommendationsEmptyCorpus(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	res, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if err != nil {
		t.Fatalf("empty corpus must not error: %v", err)
	}
	if res.Total != 0 || len(res.Items) != 0 || res.HasMore {
		t.Errorf("want empty result, got total=%d items=%d hasMore=%v",
			res.Total, len(res.Items), res.HasMore)
	}
}

func TestGetRecommendationsPagination(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 25; i++ {
		store.grants = append(store.grants, activeGrant(fmt.Sprintf("Grant %02d", i), "Healthcare"))
	}
	svc := newTestService(t, store)
	ctx := context.Background()

	page2 := baseRequest("u1")
	page2.Page = 2
	res, err := svc.GetRecommendations(ctx, page2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(res.Items) != DefaultLimit || res.Total != 25 || !res.HasMore {
		t.Errorf("page 2: items=%d total=%d hasMore=%v", len(res.Items), res.Total, res.HasMore)
	}

	page3 := baseRequest("u1")
	page3.Page = 3
	res, err = svc.GetRecommendations(ctx, page3)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(res.Items) != 5 || res.HasMore {
		t.Errorf("page 3: items=%d hasMore=%v, want 5 items and no more", len(res.Items), res.HasMore)
	}
}

func TestGetRecommendationsValidation(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	ctx := context.Background()

	req := baseRequest("")
	if _, err := svc.GetRecommendations(ctx, req); match.KindOf(err) != match.KindValidation {
		t.Errorf("missing subject: kind = %v, want validation", match.KindOf(err))
	}

	req = baseRequest("u1")
	req.Weights = &models.MatchWeights{CategoryMatch: -1}
	if _, err := svc.GetRecommendations(ctx, req); match.KindOf(err) != match.KindValidation {
		t.Errorf("negative weight: kind = %v, want validation", match.KindOf(err))
	}
}

func TestGetRecommendationsStoreFailure(t *testing.T) {
	svc := newTestService(t, &fakeStore{err: errors.New("connection refused")})

	_, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if match.KindOf(err) != match.KindUpstreamFailure {
		t.Errorf("kind = %v, want upstream failure", match.KindOf(err))
	}
}

func TestProfileEmbeddingMemoized(t *testing.T) {
	g1 := activeGrant("Health Fund", "Healthcare")
	g1.Embedding = []float32{1, 0, 0}
	store := &fakeStore{grants: []models.Grant{g1}}
	embedder := &fakeEmbedder{vec: []float32{0.9, 0.1, 0}}
	svc := newTestService(t, store, WithEmbedder(embedder))
	ctx := context.Background()

	if _, err := svc.GetRecommendations(ctx, baseRequest("u1")); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Different filters miss the recommendation cache but reuse the
	// memoized profile embedding.
	req := baseRequest("u1")
	req.Filters.Categories = []string{"Healthcare"}
	if _, err := svc.GetRecommendations(ctx, req); err != nil {
		t.Fatalf("second request: %v", err)
	}

	if got := embedder.calls.Load(); got != 1 {
		t.Errorf("embedder called %d times, want 1", got)
	}
}

func TestEmbedderFailureDegradesToText(t *testing.T) {
	store := &fakeStore{grants: []models.Grant{activeGrant("Community Health Fund", "Healthcare")}}
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: connection refused", ai.ErrUpstream)}
	svc := newTestService(t, store, WithEmbedder(embedder))

	res, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if err != nil {
		t.Fatalf("embedder outage must degrade, not fail: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(res.Items))
	}
	if res.Items[0].Score <= 0 {
		t.Errorf("score = %v, want > 0 from text fallback", res.Items[0].Score)
	}
}

func TestRulesAdjustRanking(t *testing.T) {
	health := activeGrant("Health Fund", "Healthcare")
	arts := activeGrant("Arts Fund", "Arts")
	store := &fakeStore{grants: []models.Grant{health, arts}}

	rules := []match.Rule{{
		Name: "boost arts",
		Condition: match.Condition{
			Field: "grant.categories",
			Op:    "contains",
			Value: "Arts",
		},
		Score:  1.0,
		Weight: 1.0,
	}}
	svc := newTestService(t, store, WithRules(rules))

	req := baseRequest("u1")
	req.Profile.Preferences.Categories = nil
	req.Profile.Preferences.Keywords = []string{"fund"}

	res, err := svc.GetRecommendations(context.Background(), req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(res.Items))
	}
	if res.Items[0].Grant.ID != arts.ID {
		t.Errorf("boosted grant should rank first, got %q", res.Items[0].Grant.Title)
	}
}

func TestCancelledScoringNotCached(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 50; i++ {
		store.grants = append(store.grants, activeGrant(fmt.Sprintf("Grant %02d", i), "Healthcare"))
	}
	svc := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.GetRecommendations(ctx, baseRequest("u1")); err == nil {
		t.Fatal("cancelled context should abort the pipeline")
	}

	res, err := svc.GetRecommendations(context.Background(), baseRequest("u1"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Cached {
		t.Error("aborted run must not leave partial results in the cache")
	}
}
