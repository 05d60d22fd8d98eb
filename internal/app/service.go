package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/signalpulse/internal/dedup"
	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/ensemble"
	"github.com/pscheid92/signalpulse/internal/metrics"
	"github.com/pscheid92/signalpulse/internal/threshold"
)

// LeaderElector gates the maintenance sweep to a single instance.
type LeaderElector interface {
	TryBecomeLeader(ctx context.Context) (bool, error)
	RenewLease(ctx context.Context) error
	ReleaseLease(ctx context.Context) error
}

// Config tunes the background machinery of one service instance.
type Config struct {
	WorkerCount     int
	WorkerPollDelay time.Duration
	ClaimStaleAfter time.Duration
	SignalTTL       time.Duration
	SweepInterval   time.Duration
	Threshold       domain.ThresholdConfig
}

// Dependencies collects everything the service orchestrates.
// Leader may be nil, which makes every sweep tick run unconditionally.
type Dependencies struct {
	Sources     domain.SourceRepository
	Signals     domain.SignalRepository
	Predictors  domain.PredictorRepository
	Predictions domain.PredictionRepository
	Gate        *dedup.Gate
	Coordinator *ensemble.Coordinator
	Emitter     *threshold.Emitter
	Locker      domain.TargetLocker
	Leader      LeaderElector
	InstanceID  string
}

// Service is the application layer, the only component that references
// multiple domain components. It orchestrates all use cases.
type Service struct {
	sources     domain.SourceRepository
	signals     domain.SignalRepository
	predictors  domain.PredictorRepository
	predictions domain.PredictionRepository
	gate        *dedup.Gate
	coordinator *ensemble.Coordinator
	emitter     *threshold.Emitter
	locker      domain.TargetLocker
	leader      LeaderElector
	instanceID  string

	cfg       Config
	clock     clockwork.Clock
	evalGroup singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates the application layer service. Background workers and
// the sweep timer start only when Start is called.
func NewService(deps Dependencies, cfg Config, clock clockwork.Clock) *Service {
	return &Service{
		sources:     deps.Sources,
		signals:     deps.Signals,
		predictors:  deps.Predictors,
		predictions: deps.Predictions,
		gate:        deps.Gate,
		coordinator: deps.Coordinator,
		emitter:     deps.Emitter,
		locker:      deps.Locker,
		leader:      deps.Leader,
		instanceID:  deps.InstanceID,
		cfg:         cfg,
		clock:       clock,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the claim workers and the sweep timer.
func (s *Service) Start() {
	s.startWorkers()
	s.startSweepTimer()
}

// Stop shuts the background machinery down and waits for in-flight work.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	if s.leader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.leader.ReleaseLease(ctx); err != nil {
			slog.Error("Failed to release sweep leadership", "error", err)
		}
	}
}

// ProcessItem runs one crawled item through the deduplication gate for the
// source identified by slug.
func (s *Service) ProcessItem(ctx context.Context, sourceSlug string, item domain.CrawledItem) (*domain.ProcessItemResult, error) {
	source, err := s.sources.GetBySlug(ctx, sourceSlug)
	if err != nil {
		return nil, err
	}
	return s.gate.ProcessItem(ctx, source, item)
}

// EvaluateSignal claims the signal and runs the full ensemble pass. When the
// pass mints a predictor, a threshold evaluation for its target follows
// immediately.
func (s *Service) EvaluateSignal(ctx context.Context, signalID uuid.UUID) (*ensemble.Outcome, error) {
	outcome, err := s.coordinator.EvaluateSignal(ctx, signalID, s.instanceID)
	if err != nil {
		return nil, err
	}
	if outcome.Predictor != nil {
		s.evaluateAfterMint(ctx, outcome.Predictor.TargetID)
	}
	return outcome, nil
}

func (s *Service) evaluateAfterMint(ctx context.Context, targetID uuid.UUID) {
	if _, err := s.EvaluateTarget(ctx, targetID); err != nil && !errors.Is(err, domain.ErrEvaluationInProgress) {
		slog.Error("Threshold evaluation after predictor mint failed",
			"target_id", targetID.String(), "error", err)
	}
}

// Evaluation outcomes, mirrored into the threshold_evaluations_total metric.
const (
	OutcomeEmitted        = "emitted"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeOpenPrediction = "open_prediction"
	OutcomeConsumedRace   = "consumed_race"
	outcomeLockBusy       = "lock_busy"
)

// EvaluationReport is the result of one per-target threshold pass.
type EvaluationReport struct {
	Outcome    string                     `json:"outcome"`
	Evaluation domain.ThresholdEvaluation `json:"evaluation"`
	Prediction *domain.Prediction         `json:"prediction,omitempty"`
}

// EvaluateTarget runs the consensus gate for one target under the per-target
// lock and emits a prediction when the gate passes. Concurrent local calls
// for the same target collapse into one pass.
func (s *Service) EvaluateTarget(ctx context.Context, targetID uuid.UUID) (*EvaluationReport, error) {
	v, err, _ := s.evalGroup.Do(targetID.String(), func() (any, error) {
		var report *EvaluationReport
		err := s.locker.WithLock(ctx, targetID, func(ctx context.Context) error {
			var evalErr error
			report, evalErr = s.evaluateLocked(ctx, targetID)
			return evalErr
		})
		if err != nil {
			return nil, err
		}
		return report, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrEvaluationInProgress) {
			metrics.ThresholdEvaluationsTotal.WithLabelValues(outcomeLockBusy).Inc()
		}
		return nil, err
	}
	return v.(*EvaluationReport), nil
}

func (s *Service) evaluateLocked(ctx context.Context, targetID uuid.UUID) (*EvaluationReport, error) {
	open, err := s.predictions.HasOpen(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if open {
		metrics.ThresholdEvaluationsTotal.WithLabelValues(OutcomeOpenPrediction).Inc()
		return &EvaluationReport{
			Outcome: OutcomeOpenPrediction,
			Evaluation: domain.ThresholdEvaluation{
				TargetID:    targetID,
				EvaluatedAt: s.clock.Now(),
				Config:      s.cfg.Threshold,
			},
		}, nil
	}

	active, err := s.predictors.ListActive(ctx, targetID)
	if err != nil {
		return nil, err
	}

	result := threshold.Evaluate(targetID, active, s.cfg.Threshold, s.clock.Now())
	if !result.Evaluation.MeetsThreshold {
		metrics.ThresholdEvaluationsTotal.WithLabelValues(OutcomeBelowThreshold).Inc()
		return &EvaluationReport{Outcome: OutcomeBelowThreshold, Evaluation: result.Evaluation}, nil
	}

	prediction, err := s.emitter.Emit(ctx, result)
	if errors.Is(err, domain.ErrPredictorsConsumed) {
		// Another instance consumed a contributor first. The evaluation
		// is void, not failed.
		metrics.ThresholdEvaluationsTotal.WithLabelValues(OutcomeConsumedRace).Inc()
		slog.Info("Threshold emission lost consume race", "target_id", targetID.String())
		return &EvaluationReport{Outcome: OutcomeConsumedRace, Evaluation: result.Evaluation}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.ThresholdEvaluationsTotal.WithLabelValues(OutcomeEmitted).Inc()
	return &EvaluationReport{Outcome: OutcomeEmitted, Evaluation: result.Evaluation, Prediction: prediction}, nil
}

// InvalidatePredictor removes an active predictor from future evaluations.
func (s *Service) InvalidatePredictor(ctx context.Context, predictorID uuid.UUID) error {
	if err := s.predictors.Invalidate(ctx, predictorID); err != nil {
		return err
	}
	metrics.PredictorsInvalidatedTotal.Inc()
	slog.Info("Predictor invalidated", "predictor_id", predictorID.String())
	return nil
}

// --- Read-side passthroughs ---

func (s *Service) ListSources(ctx context.Context) ([]domain.Source, error) {
	return s.sources.List(ctx)
}

// DedupTally reports the gate's decision counters since startup.
func (s *Service) DedupTally() dedup.Tally {
	return s.gate.Tally()
}

func (s *Service) GetSignal(ctx context.Context, signalID uuid.UUID) (*domain.Signal, error) {
	return s.signals.GetByID(ctx, signalID)
}

func (s *Service) ListSignals(ctx context.Context, targetID uuid.UUID, disposition domain.Disposition, limit int) ([]domain.Signal, error) {
	return s.signals.ListByTarget(ctx, targetID, disposition, limit)
}

func (s *Service) GetPredictor(ctx context.Context, predictorID uuid.UUID) (*domain.Predictor, error) {
	return s.predictors.GetByID(ctx, predictorID)
}

func (s *Service) ListPredictors(ctx context.Context, targetID uuid.UUID, status domain.PredictorStatus, limit int) ([]domain.Predictor, error) {
	return s.predictors.ListByTarget(ctx, targetID, status, limit)
}

func (s *Service) GetPrediction(ctx context.Context, predictionID uuid.UUID) (*domain.Prediction, error) {
	return s.predictions.GetByID(ctx, predictionID)
}

func (s *Service) ListPredictions(ctx context.Context, targetID uuid.UUID, limit int) ([]domain.Prediction, error) {
	return s.predictions.ListByTarget(ctx, targetID, limit)
}
