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

const predictorColumns = `id, signal_id, target_id, direction, strength, confidence, status,
	ensemble, is_test, expires_at, consumed_at, consumed_by_prediction_id, created_at`

// PredictorRepo persists predictors. Creation pulls is_test from the parent
// signal row so the flag can never diverge.
type PredictorRepo struct {
	pool *pgxpool.Pool
}

var _ domain.PredictorRepository = (*PredictorRepo)(nil)

func NewPredictorRepo(pool *pgxpool.Pool) *PredictorRepo {
	return &PredictorRepo{pool: pool}
}

func scanPredictor(row pgx.Row) (*domain.Predictor, error) {
	var p domain.Predictor
	err := row.Scan(&p.ID, &p.SignalID, &p.TargetID, &p.Direction, &p.Strength, &p.Confidence,
		&p.Status, &p.Ensemble, &p.IsTest, &p.ExpiresAt, &p.ConsumedAt, &p.ConsumedByPredictionID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PredictorRepo) Create(ctx context.Context, predictor *domain.Predictor) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO predictors (id, signal_id, target_id, direction, strength, confidence, status, ensemble, is_test, expires_at, created_at)
		SELECT $1, s.id, $3, $4, $5, $6, $7, $8, $9, $10, $11
		FROM signals s
		WHERE s.id = $2 AND s.is_test = $9`,
		predictor.ID, predictor.SignalID, predictor.TargetID, predictor.Direction,
		predictor.Strength, predictor.Confidence, predictor.Status, predictor.Ensemble,
		predictor.IsTest, predictor.ExpiresAt, predictor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create predictor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM signals WHERE id = $1)`, predictor.SignalID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check parent signal: %w", err)
		}
		if exists {
			return domain.ErrTestFlagMismatch
		}
		return domain.ErrSignalNotFound
	}
	return nil
}

func (r *PredictorRepo) GetByID(ctx context.Context, predictorID uuid.UUID) (*domain.Predictor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictorColumns+` FROM predictors WHERE id = $1`, predictorID)
	predictor, err := scanPredictor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPredictorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get predictor: %w", err)
	}
	return predictor, nil
}

func (r *PredictorRepo) ListActive(ctx context.Context, targetID uuid.UUID) ([]domain.Predictor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+predictorColumns+`
		FROM predictors
		WHERE target_id = $1 AND status = 'active' AND expires_at > NOW()
		ORDER BY created_at`,
		targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active predictors: %w", err)
	}
	defer rows.Close()
	return collectPredictors(rows)
}

func (r *PredictorRepo) ListByTarget(ctx context.Context, targetID uuid.UUID, status domain.PredictorStatus, limit int) ([]domain.Predictor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+predictorColumns+`
		FROM predictors
		WHERE target_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		targetID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictors: %w", err)
	}
	defer rows.Close()
	return collectPredictors(rows)
}

func collectPredictors(rows pgx.Rows) ([]domain.Predictor, error) {
	var predictors []domain.Predictor
	for rows.Next() {
		predictor, err := scanPredictor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan predictor: %w", err)
		}
		predictors = append(predictors, *predictor)
	}
	return predictors, rows.Err()
}

func (r *PredictorRepo) Invalidate(ctx context.Context, predictorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE predictors SET status = 'invalidated' WHERE id = $1 AND status = 'active'`,
		predictorID)
	if err != nil {
		return fmt.Errorf("failed to invalidate predictor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM predictors WHERE id = $1)`, predictorID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check predictor: %w", err)
		}
		if exists {
			return domain.ErrPredictorNotActive
		}
		return domain.ErrPredictorNotFound
	}
	return nil
}

func (r *PredictorRepo) ExpireStale(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE predictors SET status = 'expired' WHERE status = 'active' AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire predictors: %w", err)
	}
	return tag.RowsAffected(), nil
}
