package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/pscheid92/signalpulse/internal/domain"
)

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTargetLock_SerializesPerTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	client := setupTestRedis(t)
	ctx := context.Background()
	targetID := uuid.New()

	lock := NewTargetLock(client, 30*time.Second)

	err := lock.WithLock(ctx, targetID, func(ctx context.Context) error {
		// Second acquisition on the same target must not wait.
		inner := lock.WithLock(ctx, targetID, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, domain.ErrEvaluationInProgress)

		// A different target is unaffected.
		other := lock.WithLock(ctx, uuid.New(), func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	// Released on return: the same target locks again.
	err = lock.WithLock(ctx, targetID, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestTargetLock_ReleaseSurvivesCancelledContext(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	client := setupTestRedis(t)
	targetID := uuid.New()
	lock := NewTargetLock(client, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := lock.WithLock(ctx, targetID, func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	err = lock.WithLock(context.Background(), targetID, func(context.Context) error { return nil })
	assert.NoError(t, err, "lock released even though the holder's context was cancelled")
}

func TestLeaderElection_SingleLeaderAndFailover(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	client := setupTestRedis(t)
	ctx := context.Background()

	first := NewLeaderElection(client, "instance-1", 2*time.Second)
	second := NewLeaderElection(client, "instance-2", 2*time.Second)

	ok, err := first.TryBecomeLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryBecomeLeader(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "only one leader at a time")

	isLeader, err := first.IsLeader(ctx)
	require.NoError(t, err)
	assert.True(t, isLeader)

	require.NoError(t, first.RenewLease(ctx))

	// Voluntary release hands leadership over.
	require.NoError(t, first.ReleaseLease(ctx))
	ok, err = second.TryBecomeLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, first.RenewLease(ctx), ErrNotLeader)
}
