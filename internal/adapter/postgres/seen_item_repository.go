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

const seenItemColumns = `source_id, content_hash, first_seen_at, last_seen_at, signal_id`

// SeenItemRepo implements the exact-hash ledger backed by PostgreSQL.
type SeenItemRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SeenItemRepository = (*SeenItemRepo)(nil)

// NewSeenItemRepo creates a SeenItemRepo from the shared pool.
func NewSeenItemRepo(pool *pgxpool.Pool) *SeenItemRepo {
	return &SeenItemRepo{pool: pool}
}

func scanSeenItem(row pgx.Row) (*domain.SourceSeenItem, error) {
	var item domain.SourceSeenItem
	err := row.Scan(&item.SourceID, &item.ContentHash, &item.FirstSeenAt, &item.LastSeenAt, &item.SignalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan seen item: %w", err)
	}
	return &item, nil
}

func (r *SeenItemRepo) Find(ctx context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (*domain.SourceSeenItem, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE source_seen_items
		SET last_seen_at = $3
		WHERE source_id = $1 AND content_hash = $2
		RETURNING `+seenItemColumns,
		sourceID, contentHash, seenAt)
	return scanSeenItem(row)
}

func (r *SeenItemRepo) Insert(ctx context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (bool, *domain.SourceSeenItem, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO source_seen_items (source_id, content_hash, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (source_id, content_hash) DO NOTHING`,
		sourceID, contentHash, seenAt)
	if err != nil {
		return false, nil, fmt.Errorf("failed to insert seen item: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	// Conflict: the pair exists. Bump last_seen_at and hand the row back.
	existing, err := r.Find(ctx, sourceID, contentHash, seenAt)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *SeenItemRepo) FindCrossSource(ctx context.Context, targetID, excludeSourceID uuid.UUID, contentHash string, since time.Time) (*domain.SourceSeenItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT i.source_id, i.content_hash, i.first_seen_at, i.last_seen_at, i.signal_id
		FROM source_seen_items i
		JOIN sources s ON s.id = i.source_id
		WHERE i.content_hash = $3
		  AND i.source_id <> $2
		  AND s.target_id = $1
		  AND i.first_seen_at >= $4
		ORDER BY i.first_seen_at
		LIMIT 1`,
		targetID, excludeSourceID, contentHash, since)
	return scanSeenItem(row)
}

func (r *SeenItemRepo) LinkSignal(ctx context.Context, sourceID uuid.UUID, contentHash string, signalID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE source_seen_items
		SET signal_id = $3
		WHERE source_id = $1 AND content_hash = $2`,
		sourceID, contentHash, signalID)
	if err != nil {
		return fmt.Errorf("failed to link seen item: %w", err)
	}
	return nil
}
