// Package ingest is the write-side boundary of the grant corpus. Grants
// arrive pre-extracted (scraping and parsing happen out of process); this
// package validates them, computes description embeddings and upserts them
// idempotently.
package ingest

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/ai"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
)

// GrantWriter is the persistence surface the loader needs. *db.Store
// satisfies it.
type GrantWriter interface {
	UpsertGrant(ctx context.Context, g models.Grant) error
	MarkUnobservedInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// GrantInput is one externally supplied grant record. ApplicationURL is the
// natural key; re-submitting the same URL updates in place.
type GrantInput struct {
	Title             string     `json:"title" validate:"required"`
	Description       string     `json:"description"`
	Organization      string     `json:"organization"`
	ApplicationURL    string     `json:"application_url" validate:"required,url"`
	AmountMin         float64    `json:"amount_min" validate:"gte=0"`
	AmountMax         float64    `json:"amount_max" validate:"gte=0,gtefield=AmountMin"`
	Currency          string     `json:"currency"`
	Categories        []string   `json:"categories"`
	Regions           []string   `json:"regions"`
	OrganizationTypes []string   `json:"organization_types"`
	Requirements      []string   `json:"requirements"`
	Deadline          *time.Time `json:"deadline"`
	OpenAt            *time.Time `json:"open_at"`
	Status            string     `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Result summarizes one batch load.
type Result struct {
	Received       int   `json:"received"`
	Upserted       int   `json:"upserted"`
	Embedded       int   `json:"embedded"`
	Failed         int   `json:"failed"`
	MarkedInactive int64 `json:"marked_inactive"`
}

type Loader struct {
	store    GrantWriter
	embedder ai.Embedder
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	validate *validator.Validate
}

// NewLoader wires a batch loader. embedder may be nil; grants then rely on
// text similarity until an embedding is backfilled.
func NewLoader(store GrantWriter, embedder ai.Embedder, limiter *ratelimit.Limiter, logger *zap.Logger) *Loader {
	return &Loader{
		store:    store,
		embedder: embedder,
		limiter:  limiter,
		logger:   logger,
		validate: validator.New(),
	}
}

// Load validates and upserts a batch. Invalid or failing records are counted
// and logged but do not abort the batch; a cancelled context does.
func (l *Loader) Load(ctx context.Context, inputs []GrantInput) (*Result, error) {
	res := &Result{Received: len(inputs)}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := l.validate.Struct(in); err != nil {
			l.logger.Warn("rejecting invalid grant record",
				zap.String("url", in.ApplicationURL), zap.Error(err))
			res.Failed++
			continue
		}

		g := l.toGrant(in)
		if l.embedder != nil && g.Description != "" {
			if vec, ok := l.embed(ctx, g.Description); ok {
				g.Embedding = vec
				res.Embedded++
			}
		}

		if err := l.store.UpsertGrant(ctx, g); err != nil {
			l.logger.Warn("grant upsert failed",
				zap.String("url", in.ApplicationURL), zap.Error(err))
			res.Failed++
			continue
		}
		res.Upserted++
	}

	return res, nil
}

// MarkStale flips grants last observed before cutoff to inactive and
// records the count on a fresh result.
func (l *Loader) MarkStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := l.store.MarkUnobservedInactive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("marked stale grants inactive", zap.Int64("count", n))
	}
	return n, nil
}

func (l *Loader) toGrant(in GrantInput) models.Grant {
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	status := in.Status
	if status == "" {
		status = models.StatusActive
	}

	return models.Grant{
		Title:          in.Title,
		Description:    in.Description,
		Organization:   in.Organization,
		ApplicationURL: in.ApplicationURL,
		Amount: models.Amount{
			Min:      in.AmountMin,
			Max:      in.AmountMax,
			Currency: currency,
		},
		Categories: in.Categories,
		Eligibility: models.Eligibility{
			Regions:           in.Regions,
			OrganizationTypes: in.OrganizationTypes,
			Requirements:      in.Requirements,
		},
		Deadline: in.Deadline,
		OpenAt:   in.OpenAt,
		Status:   status,
	}
}

// embed computes a description embedding behind the shared rate limiter.
// Throttling or upstream failure is non-fatal; the grant is stored without
// a vector.
func (l *Loader) embed(ctx context.Context, text string) ([]float32, bool) {
	if err := l.limiter.Acquire(ctx); err != nil {
		l.logger.Warn("embedding throttled during ingest", zap.Error(err))
		return nil, false
	}
	vec, err := l.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		l.logger.Warn("embedding failed during ingest", zap.Error(err))
		return nil, false
	}
	return vec, true
}
