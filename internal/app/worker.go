package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/signalpulse/internal/domain"
)

func (s *Service) startWorkers() {
	for i := range s.cfg.WorkerCount {
		worker := fmt.Sprintf("%s-%d", s.instanceID, i)
		s.wg.Add(1)
		go s.runWorker(worker)
	}
	slog.Info("Claim workers started", "count", s.cfg.WorkerCount, "poll_delay", s.cfg.WorkerPollDelay.String())
}

func (s *Service) runWorker(worker string) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if s.processNext(context.Background(), worker) {
			// Drain the queue before sleeping again.
			continue
		}

		select {
		case <-s.stopCh:
			return
		case <-s.clock.After(s.cfg.WorkerPollDelay):
		}
	}
}

// processNext claims and evaluates one pending signal. It reports whether a
// signal was claimed, regardless of the evaluation outcome.
func (s *Service) processNext(ctx context.Context, worker string) bool {
	signal, err := s.signals.NextPending(ctx, worker, s.cfg.ClaimStaleAfter)
	if errors.Is(err, domain.ErrNoPendingSignals) {
		return false
	}
	if err != nil {
		slog.Error("Failed to claim pending signal", "worker", worker, "error", err)
		return false
	}

	outcome, err := s.coordinator.EvaluateClaimed(ctx, signal)
	if err != nil {
		slog.Error("Signal evaluation failed",
			"worker", worker, "signal_id", signal.ID.String(), "error", err)
		return true
	}

	if outcome.Predictor != nil {
		s.evaluateAfterMint(ctx, outcome.Predictor.TargetID)
	}
	return true
}
