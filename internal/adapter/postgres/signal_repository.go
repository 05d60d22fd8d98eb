package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/signalpulse/internal/domain"
)

const signalColumns = `id, target_id, source_id, title, content, direction, urgency, disposition,
	rejection_reason, is_test, dedup_degraded, processing_worker, processing_started_at,
	detected_at, created_at, updated_at`

// SignalRepo implements the signal lifecycle on PostgreSQL. Claims are
// conditional UPDATEs so two workers can never hold the same signal.
type SignalRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SignalRepository = (*SignalRepo)(nil)

func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var s domain.Signal
	err := row.Scan(&s.ID, &s.TargetID, &s.SourceID, &s.Title, &s.Content, &s.Direction, &s.Urgency,
		&s.Disposition, &s.RejectionReason, &s.IsTest, &s.DedupDegraded, &s.ProcessingWorker,
		&s.ProcessingStartedAt, &s.DetectedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SignalRepo) Create(ctx context.Context, signal *domain.Signal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO signals (id, target_id, source_id, title, content, direction, disposition, is_test, dedup_degraded, detected_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		signal.ID, signal.TargetID, signal.SourceID, signal.Title, signal.Content,
		signal.Direction, signal.Disposition, signal.IsTest, signal.DedupDegraded,
		signal.DetectedAt, signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}
	return nil
}

func (r *SignalRepo) GetByID(ctx context.Context, signalID uuid.UUID) (*domain.Signal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, signalID)
	signal, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return signal, nil
}

func (r *SignalRepo) Claim(ctx context.Context, signalID uuid.UUID, worker string, staleAfter time.Duration) (*domain.Signal, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE signals
		SET disposition = 'processing', processing_worker = $2, processing_started_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND (disposition = 'pending'
		       OR (disposition = 'processing' AND processing_started_at < NOW() - ($3 * INTERVAL '1 second')))
		RETURNING `+signalColumns,
		signalID, worker, staleAfter.Seconds())
	signal, err := scanSignal(row)
	if err == nil {
		return signal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim signal: %w", err)
	}

	// No row matched: figure out why before reporting.
	current, getErr := r.GetByID(ctx, signalID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Disposition == domain.DispositionProcessing {
		return nil, domain.ErrSignalClaimed
	}
	return nil, domain.ErrSignalTerminal
}

func (r *SignalRepo) NextPending(ctx context.Context, worker string, staleAfter time.Duration) (*domain.Signal, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE signals
		SET disposition = 'processing', processing_worker = $1, processing_started_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM signals
			WHERE disposition = 'pending'
			   OR (disposition = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+signalColumns,
		worker, staleAfter.Seconds())
	signal, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoPendingSignals
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next pending signal: %w", err)
	}
	return signal, nil
}

func (r *SignalRepo) Finish(ctx context.Context, signalID uuid.UUID, disposition domain.Disposition, urgency *domain.Urgency, reason *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE signals
		SET disposition = $2, urgency = $3, rejection_reason = $4,
		    processing_worker = NULL, processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND disposition = 'processing'`,
		signalID, disposition, urgency, reason)
	if err != nil {
		return fmt.Errorf("failed to finish signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSignalNotFound
	}
	return nil
}

func (r *SignalRepo) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE signals
		SET disposition = 'expired', processing_worker = NULL, processing_started_at = NULL, updated_at = NOW()
		WHERE disposition IN ('pending', 'processing')
		  AND created_at < NOW() - ($1 * INTERVAL '1 second')`,
		ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale signals: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SignalRepo) ListByTarget(ctx context.Context, targetID uuid.UUID, disposition domain.Disposition, limit int) ([]domain.Signal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE target_id = $1 AND ($2 = '' OR disposition = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		targetID, string(disposition), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *signal)
	}
	return signals, rows.Err()
}
