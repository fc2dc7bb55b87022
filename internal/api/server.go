// Package api exposes the matching engine over HTTP. All collaborators are
// injected through NewServer; the package holds no process-wide state.
package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/ingest"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
	"github.com/david/grant-matcher/internal/recommend"
)

type Config struct {
	// AdminSecret guards the ingest/seed endpoints. Empty generates an
	// ephemeral secret, which effectively disables remote admin access.
	AdminSecret string
	CORSOrigins []string

	// HTTPRateLimit caps requests per second per client IP at the edge,
	// independent of the engine's own limiter in front of the embedder.
	HTTPRateLimit rate.Limit
	HTTPRateBurst int
}

type Server struct {
	Echo *echo.Echo

	store       *db.Store
	recommender *recommend.Service
	loader      *ingest.Loader
	logger      *zap.Logger
	validate    *validator.Validate
	adminSecret string
}

func NewServer(store *db.Store, recommender *recommend.Service, loader *ingest.Loader, logger *zap.Logger, cfg Config) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI: true, LogStatus: true, LogMethod: true, LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-Admin-Secret"},
	}))

	limit := cfg.HTTPRateLimit
	if limit <= 0 {
		limit = rate.Limit(20)
	}
	burst := cfg.HTTPRateBurst
	if burst <= 0 {
		burst = 40
	}
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
	}))

	secret := strings.TrimSpace(cfg.AdminSecret)
	if secret == "" {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate fallback admin secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		logger.Warn("admin secret is not configured; using ephemeral in-memory secret")
	}

	s := &Server{
		Echo:        e,
		store:       store,
		recommender: recommender,
		loader:      loader,
		logger:      logger,
		validate:    validator.New(),
		adminSecret: secret,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.POST("/recommendations", s.handleRecommendations)
	api.POST("/recommendations/refresh", s.handleRefresh)
	api.GET("/grants", s.handleListGrants)
	api.GET("/grants/:id", s.handleGetGrant)
	api.GET("/stats", s.handleStats)

	admin := api.Group("", s.adminMiddleware)
	admin.POST("/ingest", s.handleIngest)
	admin.POST("/seed", s.handleSeed)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// recommendationRequest is the public DTO for a recommendation query.
type recommendationRequest struct {
	UserID  string                  `json:"user_id" validate:"required"`
	Profile models.ApplicantProfile `json:"profile"`
	Filters match.FilterConstraints `json:"filters"`
	Weights *models.MatchWeights    `json:"weights"`
	Page    int                     `json:"page" validate:"omitempty,min=1"`
	Limit   int                     `json:"limit" validate:"omitempty,min=1,max=100"`
	Explain bool                    `json:"explain"`
}

func (s *Server) handleRecommendations(c echo.Context) error {
	var req recommendationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	result, err := s.recommender.GetRecommendations(c.Request().Context(), recommend.Request{
		SubjectKey: req.UserID,
		Profile:    req.Profile,
		Filters:    req.Filters,
		Weights:    req.Weights,
		Page:       req.Page,
		Limit:      req.Limit,
		Explain:    req.Explain,
	})
	if err != nil {
		return s.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type refreshRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	deleted, err := s.recommender.Refresh(c.Request().Context(), req.UserID)
	if err != nil {
		return s.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "recommendations refreshed",
		"user_id": req.UserID,
		"evicted": deleted,
	})
}

func (s *Server) handleListGrants(c echo.Context) error {
	q := db.GrantQuery{
		Status: c.QueryParam("status"),
		Limit:  20,
	}
	if v := c.QueryParam("categories"); v != "" {
		q.Categories = splitCSV(v)
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_amount"), 64); err == nil && v > 0 {
		q.MinAmount = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("max_amount"), 64); err == nil && v > 0 {
		q.MaxAmount = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		q.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		q.Offset = v
	}

	grants, err := s.store.ListGrants(c.Request().Context(), q)
	if err != nil {
		s.logger.Error("grant listing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"grants": grants,
		"count":  len(grants),
	})
}

func (s *Server) handleGetGrant(c echo.Context) error {
	grant, err := s.store.GetGrant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody("grant not found"))
	}
	return c.JSON(http.StatusOK, grant)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
	return c.JSON(http.StatusOK, stats)
}

type ingestRequest struct {
	Grants []ingest.GrantInput `json:"grants" validate:"required,min=1"`

	// MarkStaleBefore flips grants not re-observed since this time to
	// inactive after the batch lands.
	MarkStaleBefore *time.Time `json:"mark_stale_before"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := s.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	result, err := s.loader.Load(c.Request().Context(), req.Grants)
	if err != nil {
		s.logger.Error("ingest batch aborted", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	if req.MarkStaleBefore != nil {
		n, err := s.loader.MarkStale(c.Request().Context(), *req.MarkStaleBefore)
		if err != nil {
			s.logger.Error("stale marking failed", zap.Error(err))
		} else {
			result.MarkedInactive = n
		}
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSeed(c echo.Context) error {
	result, err := s.loader.Load(c.Request().Context(), seedGrants())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "seed complete",
		"result":  result,
	})
}

// pipelineError maps engine error kinds onto HTTP statuses. Rate-limit
// errors carry a Retry-After hint when the limiter produced one.
func (s *Server) pipelineError(c echo.Context, err error) error {
	kind := match.KindOf(err)

	var rle *ratelimit.RateLimitError
	if errors.As(err, &rle) {
		c.Response().Header().Set("Retry-After",
			strconv.Itoa(int(rle.RetryAfter.Round(time.Second).Seconds())))
		kind = match.KindRateLimited
	}

	status := http.StatusInternalServerError
	switch kind {
	case match.KindValidation:
		status = http.StatusBadRequest
	case match.KindRateLimited:
		status = http.StatusTooManyRequests
	case match.KindUpstreamTimeout:
		status = http.StatusGatewayTimeout
	case match.KindUpstreamFailure:
		status = http.StatusBadGateway
	case match.KindNotFound:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("recommendation pipeline failed", zap.Error(err))
		return c.JSON(status, errorBody("internal server error"))
	}
	return c.JSON(status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == s.adminSecret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") && authHeader[7:] == s.adminSecret {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized admin access"))
	}
}

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
