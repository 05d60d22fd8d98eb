package app

import (
	"context"
	"log/slog"

	"github.com/pscheid92/signalpulse/internal/metrics"
)

func (s *Service) startSweepTimer() {
	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ticker.Chan():
				s.sweepTick(context.Background())
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Sweep timer started", "interval", s.cfg.SweepInterval.String())
}

// sweepTick runs the sweep when this instance holds (or wins) leadership.
func (s *Service) sweepTick(ctx context.Context) {
	if s.leader != nil {
		won, err := s.leader.TryBecomeLeader(ctx)
		if err != nil {
			slog.Error("Sweep leader election failed", "error", err)
			return
		}
		if !won {
			// The key exists. Renewal succeeds only when it is ours.
			if err := s.leader.RenewLease(ctx); err != nil {
				return
			}
		}
	}
	s.RunSweep(ctx)
}

// RunSweep expires signals past their TTL and predictors past their expiry.
func (s *Service) RunSweep(ctx context.Context) {
	expiredSignals, err := s.signals.ExpireStale(ctx, s.cfg.SignalTTL)
	if err != nil {
		slog.Error("Signal TTL sweep failed", "error", err)
	} else if expiredSignals > 0 {
		metrics.SignalsExpiredTotal.Add(float64(expiredSignals))
		slog.Info("Expired stale signals", "count", expiredSignals)
	}

	expiredPredictors, err := s.predictors.ExpireStale(ctx)
	if err != nil {
		slog.Error("Predictor expiry sweep failed", "error", err)
	} else if expiredPredictors > 0 {
		metrics.PredictorsExpiredTotal.Add(float64(expiredPredictors))
		slog.Info("Expired stale predictors", "count", expiredPredictors)
	}
}
