package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/signalpulse/internal/domain"
)

// AnalystRepo reads the analyst registry.
type AnalystRepo struct {
	pool *pgxpool.Pool
}

var _ domain.AnalystRepository = (*AnalystRepo)(nil)

func NewAnalystRepo(pool *pgxpool.Pool) *AnalystRepo {
	return &AnalystRepo{pool: pool}
}

func (r *AnalystRepo) ListEnabled(ctx context.Context) ([]domain.Analyst, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slug, scope, scope_ref, weight, tier, instructions, enabled, created_at
		FROM analysts
		WHERE enabled
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysts: %w", err)
	}
	defer rows.Close()

	var analysts []domain.Analyst
	for rows.Next() {
		var a domain.Analyst
		err := rows.Scan(&a.ID, &a.Slug, &a.Scope, &a.ScopeRef, &a.Weight, &a.Tier, &a.Instructions, &a.Enabled, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analyst: %w", err)
		}
		analysts = append(analysts, a)
	}
	return analysts, rows.Err()
}

// LearningRepo reads promoted learnings.
type LearningRepo struct {
	pool *pgxpool.Pool
}

var _ domain.LearningRepository = (*LearningRepo)(nil)

func NewLearningRepo(pool *pgxpool.Pool) *LearningRepo {
	return &LearningRepo{pool: pool}
}

func (r *LearningRepo) ListActive(ctx context.Context) ([]domain.Learning, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, scope, scope_ref, content, active, created_at
		FROM learnings
		WHERE active
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list learnings: %w", err)
	}
	defer rows.Close()

	var learnings []domain.Learning
	for rows.Next() {
		var l domain.Learning
		err := rows.Scan(&l.ID, &l.Scope, &l.ScopeRef, &l.Content, &l.Active, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning: %w", err)
		}
		learnings = append(learnings, l)
	}
	return learnings, rows.Err()
}
