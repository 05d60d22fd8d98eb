package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pscheid92/signalpulse/internal/metrics"
)

// ErrNotLeader is returned by RenewLease when another instance took over.
var ErrNotLeader = errors.New("not leader")

const sweepLeaderKey = "signalpulse:leader:sweep"

// renewScript extends the lease only while this instance still leads.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// LeaderElection elects a single sweep leader via SETNX with a TTL lease.
// A crashed leader's lease expires and another instance takes over.
type LeaderElection struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewLeaderElection creates the sweep leader election for one instance.
func NewLeaderElection(client *redis.Client, instanceID string, ttl time.Duration) *LeaderElection {
	return &LeaderElection{client: client, instanceID: instanceID, ttl: ttl}
}

// TryBecomeLeader attempts to acquire the lease. Returns true when this
// instance now leads.
func (l *LeaderElection) TryBecomeLeader(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, sweepLeaderKey, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if acquired {
		metrics.SweepLeaderElections.Inc()
		metrics.IsSweepLeader.Set(1)
	}
	return acquired, nil
}

// RenewLease extends the lease. Call it around every ttl/2 while sweeping.
func (l *LeaderElection) RenewLease(ctx context.Context) error {
	result, err := l.client.Eval(ctx, renewScript, []string{sweepLeaderKey},
		l.instanceID, int(l.ttl.Seconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		metrics.IsSweepLeader.Set(0)
		return ErrNotLeader
	}
	return nil
}

// IsLeader reports whether this instance currently holds the lease.
func (l *LeaderElection) IsLeader(ctx context.Context) (bool, error) {
	current, err := l.client.Get(ctx, sweepLeaderKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == l.instanceID, nil
}

// ReleaseLease gives the lease up voluntarily during graceful shutdown.
func (l *LeaderElection) ReleaseLease(ctx context.Context) error {
	metrics.IsSweepLeader.Set(0)
	return l.client.Eval(ctx, releaseScript, []string{sweepLeaderKey}, l.instanceID).Err()
}
