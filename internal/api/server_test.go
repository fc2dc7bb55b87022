package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
	"github.com/david/grant-matcher/internal/recommend"
)

type fakeGrantSource struct {
	grants []models.Grant
}

func (f *fakeGrantSource) ListGrants(ctx context.Context, q db.GrantQuery) ([]models.Grant, error) {
	return f.grants, nil
}

type fakeGrantWriter struct {
	upserts int
}

func (f *fakeGrantWriter) UpsertGrant(ctx context.Context, g models.Grant) error {
	f.upserts++
	return nil
}

func (f *fakeGrantWriter) MarkUnobservedInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestServer(t *testing.T) (*Server, *fakeGrantWriter) {
	t.Helper()

	c, err := cache.Open("", zap.NewNop())
	if err != nil {
		t.Fatalf("cache open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	limiter := ratelimit.New(100, time.Minute, time.Second)
	t.Cleanup(limiter.Stop)

	source := &fakeGrantSource{grants: []models.Grant{{
		ID:             uuid.New(),
		Title:          "Community Health Fund",
		Description:    "Supports local health initiatives",
		ApplicationURL: "https://example.org/health",
		Amount:         models.Amount{Min: 10000, Max: 50000, Currency: "USD"},
		Categories:     []string{"Healthcare"},
		Status:         models.StatusActive,
	}}}

	recommender := recommend.New(source, c, limiter, zap.NewNop())
	writer := &fakeGrantWriter{}
	loader := ingest.NewLoader(writer, nil, limiter, zap.NewNop())

	srv, err := NewServer(nil, recommender, loader, zap.NewNop(), Config{
		AdminSecret:   "test-secret",
		HTTPRateLimit: rate.Limit(1000),
		HTTPRateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("server setup: %v", err)
	}
	return srv, writer
}

func doJSON(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"user_id":"u1","profile":{"summary":"community health projects","preferences":{"categories":["Healthcare"]}}}`
	rec := doJSON(srv, http.MethodPost, "/api/v1/recommendations", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Community Health Fund") {
		t.Errorf("response missing matched grant: %s", rec.Body.String())
	}
}

func TestRecommendationsValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing user id", `{"profile":{"summary":"x"}}`},
		{"bad page", `{"user_id":"u1","page":-1}`},
		{"oversized limit", `{"user_id":"u1","limit":5000}`},
		{"negative weight", `{"user_id":"u1","weights":{"category_match":-2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(srv, http.MethodPost, "/api/v1/recommendations", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"user_id":"u1","profile":{"summary":"community health"}}`
	if rec := doJSON(srv, http.MethodPost, "/api/v1/recommendations", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("seed request: %d", rec.Code)
	}

	rec := doJSON(srv, http.MethodPost, "/api/v1/recommendations/refresh", `{"user_id":"u1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"evicted":1`) {
		t.Errorf("expected one evicted entry: %s", rec.Body.String())
	}
}

func TestAdminGuard(t *testing.T) {
	srv, writer := newTestServer(t)

	body := `{"grants":[{"title":"T","application_url":"https://example.org/t"}]}`

	rec := doJSON(srv, http.MethodPost, "/api/v1/ingest", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no secret: status = %d, want 401", rec.Code)
	}

	rec = doJSON(srv, http.MethodPost, "/api/v1/ingest", body, map[string]string{"X-Admin-Secret": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}

	rec = doJSON(srv, http.MethodPost, "/api/v1/ingest", body, map[string]string{"X-Admin-Secret": "test-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("good secret: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if writer.upserts != 1 {
		t.Errorf("upserts = %d, want 1", writer.upserts)
	}

	rec = doJSON(srv, http.MethodPost, "/api/v1/ingest", body, map[string]string{"Authorization": "Bearer test-secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("bearer secret: status = %d, want 200", rec.Code)
	}
}

func TestSeedEndpoint(t *testing.T) {
	srv, writer := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/seed", "", map[string]string{"X-Admin-Secret": "test-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if writer.upserts != len(seedGrants()) {
		t.Errorf("upserts = %d, want %d", writer.upserts, len(seedGrants()))
	}
}
