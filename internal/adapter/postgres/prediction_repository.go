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

const predictionColumns = `id, target_id, direction, confidence, timeframe_hours,
	analyst_ensemble, snapshot, status, is_test, created_at, updated_at`

// PredictionRepo persists emitted predictions. Emission and contributor
// consumption share one transaction so a lost race rolls back cleanly.
type PredictionRepo struct {
	pool *pgxpool.Pool
}

var _ domain.PredictionRepository = (*PredictionRepo)(nil)

func NewPredictionRepo(pool *pgxpool.Pool) *PredictionRepo {
	return &PredictionRepo{pool: pool}
}

func scanPrediction(row pgx.Row) (*domain.Prediction, error) {
	var p domain.Prediction
	err := row.Scan(&p.ID, &p.TargetID, &p.Direction, &p.Confidence, &p.TimeframeHours,
		&p.AnalystEnsemble, &p.Snapshot, &p.Status, &p.IsTest, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PredictionRepo) CreateConsuming(ctx context.Context, prediction *domain.Prediction, contributorIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE predictors
		SET status = 'consumed', consumed_at = NOW(), consumed_by_prediction_id = $2
		WHERE id = ANY($1) AND status = 'active'`,
		contributorIDs, prediction.ID)
	if err != nil {
		return fmt.Errorf("failed to consume predictors: %w", err)
	}
	if tag.RowsAffected() != int64(len(contributorIDs)) {
		return domain.ErrPredictorsConsumed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO predictions (id, target_id, direction, confidence, timeframe_hours, analyst_ensemble, snapshot, status, is_test, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		prediction.ID, prediction.TargetID, prediction.Direction, prediction.Confidence,
		prediction.TimeframeHours, prediction.AnalystEnsemble, prediction.Snapshot,
		prediction.Status, prediction.IsTest, prediction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepo) GetByID(ctx context.Context, predictionID uuid.UUID) (*domain.Prediction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, predictionID)
	prediction, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return prediction, nil
}

func (r *PredictionRepo) HasOpen(ctx context.Context, targetID uuid.UUID) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM predictions WHERE target_id = $1 AND status = 'active')`,
		targetID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("failed to check open predictions: %w", err)
	}
	return open, nil
}

func (r *PredictionRepo) ListByTarget(ctx context.Context, targetID uuid.UUID, limit int) ([]domain.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE target_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.Prediction
	for rows.Next() {
		prediction, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *prediction)
	}
	return predictions, rows.Err()
}
