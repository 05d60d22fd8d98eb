package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/signalpulse/internal/domain"
)

const fingerprintColumns = `signal_id, target_id, title_normalized, key_phrases, fingerprint_hash, word_count, created_at`

// FingerprintRepo persists fuzzy-match digests and serves the rolling-window
// scans of the deduplication gate.
type FingerprintRepo struct {
	pool *pgxpool.Pool
}

var _ domain.FingerprintRepository = (*FingerprintRepo)(nil)

func NewFingerprintRepo(pool *pgxpool.Pool) *FingerprintRepo {
	return &FingerprintRepo{pool: pool}
}

func (r *FingerprintRepo) Create(ctx context.Context, fp *domain.SignalFingerprint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO signal_fingerprints (signal_id, target_id, title_normalized, key_phrases, fingerprint_hash, word_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fp.SignalID, fp.TargetID, fp.TitleNormalized, fp.KeyPhrases, fp.FingerprintHash, fp.WordCount, fp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fingerprint: %w", err)
	}
	return nil
}

func (r *FingerprintRepo) ListWindow(ctx context.Context, targetID uuid.UUID, since time.Time) ([]domain.SignalFingerprint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fingerprintColumns+`
		FROM signal_fingerprints
		WHERE target_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		targetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []domain.SignalFingerprint
	for rows.Next() {
		var fp domain.SignalFingerprint
		err := rows.Scan(&fp.SignalID, &fp.TargetID, &fp.TitleNormalized, &fp.KeyPhrases, &fp.FingerprintHash, &fp.WordCount, &fp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}
