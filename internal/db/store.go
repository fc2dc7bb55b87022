package db

import (
	"context"
	"fmt"
	"time"

	"github.com/david/grant-matcher/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store is the grant persistence boundary. The matching engine treats it as
// an external collaborator: it only asks for coarsely pre-filtered grants
// and never owns ingestion.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GrantQuery is the coarse pre-filter pushed down to the database. The
// fine-grained eligibility filtering happens in the match package.
type GrantQuery struct {
	Status     string // default "active"
	Categories []string
	MinAmount  float64
	MaxAmount  float64
	Limit      int
	Offset     int
}

const grantCols = `id, title, description, organization, application_url,
	amount_min, amount_max, currency, categories, regions, organization_types,
	requirements, deadline_at, open_at, status, embedding, created_at, updated_at`

func scanGrant(scan func(dest ...interface{}) error) (models.Grant, error) {
	var g models.Grant
	var embedding *pgvector.Vector

	err := scan(
		&g.ID, &g.Title, &g.Description, &g.Organization, &g.ApplicationURL,
		&g.Amount.Min, &g.Amount.Max, &g.Amount.Currency, &g.Categories,
		&g.Eligibility.Regions, &g.Eligibility.OrganizationTypes,
		&g.Eligibility.Requirements, &g.Deadline, &g.OpenAt, &g.Status,
		&embedding, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return g, err
	}

	if embedding != nil {
		g.Embedding = embedding.Slice()
	}
	return g, nil
}

// ListGrants returns grants matching the coarse pre-filter.
func (s *Store) ListGrants(ctx context.Context, q GrantQuery) ([]models.Grant, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	status := q.Status
	if status == "" {
		status = models.StatusActive
	}
	if status != "all" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	if len(q.Categories) > 0 {
		where += fmt.Sprintf(" AND categories && $%d", argIdx)
		args = append(args, q.Categories)
		argIdx++
	}
	if q.MinAmount > 0 {
		where += fmt.Sprintf(" AND amount_max >= $%d", argIdx)
		args = append(args, q.MinAmount)
		argIdx++
	}
	if q.MaxAmount > 0 {
		where += fmt.Sprintf(" AND amount_min <= $%d", argIdx)
		args = append(args, q.MaxAmount)
		argIdx++
	}

	sql := fmt.Sprintf("SELECT %s FROM grants %s ORDER BY created_at DESC, id", grantCols, where)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if grants == nil {
		grants = []models.Grant{}
	}
	return grants, nil
}

func (s *Store) GetGrant(ctx context.Context, id string) (*models.Grant, error) {
	sql := fmt.Sprintf("SELECT %s FROM grants WHERE id = $1", grantCols)
	row := s.pool.QueryRow(ctx, sql, id)

	g, err := scanGrant(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}
	return &g, nil
}

// UpsertGrant inserts or updates a grant keyed by its application URL.
// Re-ingesting the same record is idempotent; an update reactivates the
// grant and refreshes updated_at.
func (s *Store) UpsertGrant(ctx context.Context, g models.Grant) error {
	var embedding *pgvector.Vector
	if len(g.Embedding) > 0 {
		v := pgvector.NewVector(g.Embedding)
		embedding = &v
	}

	status := g.Status
	if status == "" {
		status = models.StatusActive
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO grants (
			title, description, organization, application_url,
			amount_min, amount_max, currency, categories, regions,
			organization_types, requirements, deadline_at, open_at, status, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (application_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			organization = EXCLUDED.organization,
			amount_min = EXCLUDED.amount_min,
			amount_max = EXCLUDED.amount_max,
			currency = EXCLUDED.currency,
			categories = EXCLUDED.categories,
			regions = EXCLUDED.regions,
			organization_types = EXCLUDED.organization_types,
			requirements = EXCLUDED.requirements,
			deadline_at = EXCLUDED.deadline_at,
			open_at = EXCLUDED.open_at,
			status = EXCLUDED.status,
			embedding = COALESCE(EXCLUDED.embedding, grants.embedding),
			updated_at = NOW()
	`,
		g.Title, g.Description, g.Organization, g.ApplicationURL,
		g.Amount.Min, g.Amount.Max, g.Amount.Currency, g.Categories,
		g.Eligibility.Regions, g.Eligibility.OrganizationTypes,
		g.Eligibility.Requirements, g.Deadline, g.OpenAt, status, embedding,
	)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	return nil
}

// SetEmbedding stores a freshly computed description embedding.
func (s *Store) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE grants SET embedding = $2 WHERE id = $1",
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("embedding update failed: %w", err)
	}
	return nil
}

// MarkUnobservedInactive flips grants not re-observed since the cutoff to
// inactive. Grants are never hard-deleted; history may still reference them.
func (s *Store) MarkUnobservedInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE grants SET status = $1 WHERE status = $2 AND updated_at < $3",
		models.StatusInactive, models.StatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("stale marking failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns simple corpus counts for the health/stats endpoint.
func (s *Store) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total, active, embedded int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM grants").Scan(&total); err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM grants WHERE status = 'active'").Scan(&active)
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM grants WHERE embedding IS NOT NULL").Scan(&embedded)

	stats["total"] = total
	stats["active"] = active
	stats["with_embedding"] = embedded
	return stats, nil
}
