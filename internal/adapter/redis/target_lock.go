package redis

import (
	"context"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/metrics"
)

// releaseScript deletes the lock key only when the caller still holds it,
// so a lock that expired and was re-acquired elsewhere is never released by
// the previous holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// TargetLock serializes threshold evaluation per target with a SETNX lock.
// The TTL bounds how long a crashed holder can block a target.
type TargetLock struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.TargetLocker = (*TargetLock)(nil)

// NewTargetLock creates a per-target evaluation lock with the given TTL.
func NewTargetLock(client *redis.Client, ttl time.Duration) *TargetLock {
	return &TargetLock{client: client, ttl: ttl}
}

func lockKey(targetID uuid.UUID) string {
	return "signalpulse:eval-lock:" + targetID.String()
}

// WithLock runs fn while holding the target's evaluation lock. When another
// evaluation holds the lock it returns ErrEvaluationInProgress without
// waiting: the caller's trigger is redundant, not failed.
func (l *TargetLock) WithLock(ctx context.Context, targetID uuid.UUID, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	key := lockKey(targetID)

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}
	if !acquired {
		metrics.TargetLockContention.Inc()
		return domain.ErrEvaluationInProgress
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		l.client.Eval(releaseCtx, releaseScript, []string{key}, token)
	}()

	return fn(ctx)
}
