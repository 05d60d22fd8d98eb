package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/signalpulse/internal/domain"
)

const sourceColumns = `id, slug, target_id, is_test, cross_source_dedup, fuzzy_dedup_enabled,
	title_similarity_threshold, phrase_overlap_threshold, dedup_hours_back, created_at, updated_at`

// SourceRepo implements domain.SourceRepository backed by PostgreSQL.
type SourceRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SourceRepository = (*SourceRepo)(nil)

// NewSourceRepo creates a SourceRepo from the shared pool.
func NewSourceRepo(pool *pgxpool.Pool) *SourceRepo {
	return &SourceRepo{pool: pool}
}

func scanSource(row pgx.Row) (*domain.Source, error) {
	var s domain.Source
	err := row.Scan(
		&s.ID, &s.Slug, &s.TargetID, &s.IsTest,
		&s.Dedup.CrossSourceDedup, &s.Dedup.FuzzyDedupEnabled,
		&s.Dedup.TitleSimilarityThreshold, &s.Dedup.PhraseOverlapThreshold,
		&s.Dedup.DedupHoursBack, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &s, nil
}

func (r *SourceRepo) GetByID(ctx context.Context, sourceID uuid.UUID) (*domain.Source, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, sourceID)
	return scanSource(row)
}

func (r *SourceRepo) GetBySlug(ctx context.Context, slug string) (*domain.Source, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE slug = $1`, slug)
	return scanSource(row)
}

func (r *SourceRepo) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Upsert registers a source or updates its dedup config, keyed by slug.
func (r *SourceRepo) Upsert(ctx context.Context, source *domain.Source) (*domain.Source, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sources (slug, target_id, is_test, cross_source_dedup, fuzzy_dedup_enabled,
			title_similarity_threshold, phrase_overlap_threshold, dedup_hours_back)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			is_test = EXCLUDED.is_test,
			cross_source_dedup = EXCLUDED.cross_source_dedup,
			fuzzy_dedup_enabled = EXCLUDED.fuzzy_dedup_enabled,
			title_similarity_threshold = EXCLUDED.title_similarity_threshold,
			phrase_overlap_threshold = EXCLUDED.phrase_overlap_threshold,
			dedup_hours_back = EXCLUDED.dedup_hours_back,
			updated_at = NOW()
		RETURNING `+sourceColumns,
		source.Slug, source.TargetID, source.IsTest,
		source.Dedup.CrossSourceDedup, source.Dedup.FuzzyDedupEnabled,
		source.Dedup.TitleSimilarityThreshold, source.Dedup.PhraseOverlapThreshold,
		source.Dedup.DedupHoursBack,
	)
	return scanSource(row)
}
