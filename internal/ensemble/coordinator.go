package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/metrics"
	"github.com/pscheid92/signalpulse/internal/platform/retry"
)

// Config tunes one coordinator instance.
type Config struct {
	MaxParallel          int
	CallTimeout          time.Duration
	MaxAttempts          int
	ClaimStaleAfter      time.Duration
	ActionableConfidence float64
	ActionableConsensus  float64
	DisagreementFloor    float64
	PredictorTTL         time.Duration
}

// ChainFunc maps a signal to its scope chain.
type ChainFunc func(signal *domain.Signal) ScopeChain

// DefaultChain scopes a signal to the runner defaults plus its own target.
func DefaultChain(signal *domain.Signal) ScopeChain {
	return ScopeChain{
		Runner: DefaultRunnerRef,
		Target: signal.TargetID.String(),
	}
}

// Outcome is the result of one full ensemble pass over a claimed signal.
type Outcome struct {
	Signal      *domain.Signal
	Summary     domain.EnsembleSummary
	Urgency     domain.Urgency
	Disposition domain.Disposition
	Predictor   *domain.Predictor
}

// Coordinator claims signals, fans assessments out to the resolved analyst
// panel and turns the aggregated verdict into a predictor or a terminal
// disposition.
type Coordinator struct {
	signals    domain.SignalRepository
	predictors domain.PredictorRepository
	resolver   *Resolver
	assessor   domain.Assessor
	limiter    *rate.Limiter
	clock      clockwork.Clock
	chainFor   ChainFunc
	cfg        Config
}

// NewCoordinator creates an ensemble coordinator. A nil chainFor falls back
// to DefaultChain.
func NewCoordinator(
	signals domain.SignalRepository,
	predictors domain.PredictorRepository,
	resolver *Resolver,
	assessor domain.Assessor,
	limiter *rate.Limiter,
	clock clockwork.Clock,
	chainFor ChainFunc,
	cfg Config,
) *Coordinator {
	if chainFor == nil {
		chainFor = DefaultChain
	}
	return &Coordinator{
		signals:    signals,
		predictors: predictors,
		resolver:   resolver,
		assessor:   assessor,
		limiter:    limiter,
		clock:      clock,
		chainFor:   chainFor,
		cfg:        cfg,
	}
}

// fallbackTiers is the downgrade order used when every native-tier
// assessment fails.
var fallbackTiers = []domain.Tier{domain.TierSilver, domain.TierBronze}

// EvaluateSignal atomically claims the signal for the given worker and runs
// the full ensemble pass.
func (c *Coordinator) EvaluateSignal(ctx context.Context, signalID uuid.UUID, worker string) (*Outcome, error) {
	signal, err := c.signals.Claim(ctx, signalID, worker, c.cfg.ClaimStaleAfter)
	if err != nil {
		if errors.Is(err, domain.ErrSignalClaimed) {
			metrics.SignalClaimConflictsTotal.Inc()
		}
		return nil, err
	}
	return c.EvaluateClaimed(ctx, signal)
}

// EvaluateClaimed runs the ensemble pass over an already-claimed signal and
// moves it to a terminal disposition.
func (c *Coordinator) EvaluateClaimed(ctx context.Context, signal *domain.Signal) (*Outcome, error) {
	chain := c.chainFor(signal)
	analysts, err := c.resolver.ResolveAnalysts(ctx, chain)
	if err != nil {
		return nil, err
	}
	learnings, err := c.resolver.ResolveLearnings(ctx, chain)
	if err != nil {
		return nil, err
	}

	if len(analysts) == 0 {
		return c.finishForReview(ctx, signal, "no analysts configured for scope chain")
	}

	votes := c.collect(ctx, signal, analysts, learnings, nil)
	for _, tier := range fallbackTiers {
		if len(votes) > 0 {
			break
		}
		slog.WarnContext(ctx, "All assessments failed, falling back to cheaper tier",
			"signal", signal.ID, "tier", tier)
		metrics.TierFallbacksTotal.WithLabelValues(string(tier)).Inc()
		t := tier
		votes = c.collect(ctx, signal, analysts, learnings, &t)
	}
	if len(votes) == 0 {
		return c.finishForReview(ctx, signal, "all analyst assessments failed at every tier")
	}

	summary := Aggregate(votes)
	summary.MissingVotes = len(analysts) - len(votes)
	urgency := classifyUrgency(summary.Confidence)

	if summary.ConsensusStrength < c.cfg.DisagreementFloor {
		reason := fmt.Sprintf("sharp analyst disagreement: consensus %.2f below floor %.2f",
			summary.ConsensusStrength, c.cfg.DisagreementFloor)
		out, err := c.finishForReview(ctx, signal, reason)
		if out != nil {
			out.Summary = summary
			out.Urgency = urgency
		}
		return out, err
	}

	actionable := (summary.Confidence >= c.cfg.ActionableConfidence &&
		summary.ConsensusStrength >= c.cfg.ActionableConsensus) ||
		urgency == domain.UrgencyUrgent || urgency == domain.UrgencyNotable

	if !actionable {
		reason := fmt.Sprintf("below actionable floor: confidence %.2f, consensus %.2f; %s",
			summary.Confidence, summary.ConsensusStrength, topReasoning(summary))
		if err := c.signals.Finish(ctx, signal.ID, domain.DispositionRejected, &urgency, &reason); err != nil {
			return nil, err
		}
		metrics.SignalDispositionsTotal.WithLabelValues(string(domain.DispositionRejected)).Inc()
		return &Outcome{
			Signal:      signal,
			Summary:     summary,
			Urgency:     urgency,
			Disposition: domain.DispositionRejected,
		}, nil
	}

	now := c.clock.Now()
	predictor := &domain.Predictor{
		ID:         uuid.New(),
		SignalID:   signal.ID,
		TargetID:   signal.TargetID,
		Direction:  summary.Direction,
		Strength:   StrengthFromConfidence(summary.Confidence),
		Confidence: summary.Confidence,
		Status:     domain.PredictorActive,
		Ensemble:   summary,
		IsTest:     signal.IsTest,
		ExpiresAt:  now.Add(c.cfg.PredictorTTL),
		CreatedAt:  now,
	}
	if err := c.predictors.Create(ctx, predictor); err != nil {
		return nil, fmt.Errorf("failed to create predictor: %w", err)
	}
	if err := c.signals.Finish(ctx, signal.ID, domain.DispositionPredictorCreated, &urgency, nil); err != nil {
		return nil, err
	}

	metrics.PredictorsCreatedTotal.WithLabelValues(string(predictor.Direction)).Inc()
	metrics.SignalDispositionsTotal.WithLabelValues(string(domain.DispositionPredictorCreated)).Inc()
	slog.InfoContext(ctx, "Predictor created",
		"signal", signal.ID, "predictor", predictor.ID,
		"direction", predictor.Direction, "strength", predictor.Strength,
		"urgency", urgency)

	return &Outcome{
		Signal:      signal,
		Summary:     summary,
		Urgency:     urgency,
		Disposition: domain.DispositionPredictorCreated,
		Predictor:   predictor,
	}, nil
}

func (c *Coordinator) finishForReview(ctx context.Context, signal *domain.Signal, reason string) (*Outcome, error) {
	if err := c.signals.Finish(ctx, signal.ID, domain.DispositionReviewPending, nil, &reason); err != nil {
		return nil, err
	}
	metrics.SignalDispositionsTotal.WithLabelValues(string(domain.DispositionReviewPending)).Inc()
	slog.InfoContext(ctx, "Signal parked for review", "signal", signal.ID, "reason", reason)
	return &Outcome{Signal: signal, Disposition: domain.DispositionReviewPending}, nil
}

// collect fans one assessment call out per analyst with bounded parallelism.
// A failed or timed-out analyst is a missing vote, never a fatal error.
func (c *Coordinator) collect(ctx context.Context, signal *domain.Signal, analysts []domain.Analyst, learnings []string, tierOverride *domain.Tier) []domain.AnalystVote {
	var mu sync.Mutex
	votes := make([]domain.AnalystVote, 0, len(analysts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)
	for _, analyst := range analysts {
		a := analyst
		tier := a.Tier
		if tierOverride != nil {
			tier = *tierOverride
		}
		g.Go(func() error {
			result, err := c.assess(gctx, signal, a, tier, learnings)
			if err != nil {
				slog.WarnContext(gctx, "Analyst assessment failed",
					"signal", signal.ID, "analyst", a.Slug, "tier", tier, "error", err)
				return nil
			}
			mu.Lock()
			votes = append(votes, domain.AnalystVote{
				Slug:       a.Slug,
				Tier:       tier,
				Weight:     a.Weight,
				Direction:  result.Direction,
				Confidence: clamp01(result.Confidence),
				Reasoning:  result.Reasoning,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return votes
}

func (c *Coordinator) assess(ctx context.Context, signal *domain.Signal, analyst domain.Analyst, tier domain.Tier, learnings []string) (*domain.AnalystAssessmentResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:     c.cfg.MaxAttempts,
		InitialBackoff:  500 * time.Millisecond,
		OverloadBackoff: 5 * time.Second,
	}
	classify := func(err error) retry.Action {
		if errors.Is(err, context.Canceled) {
			return retry.Stop
		}
		return retry.Retry
	}

	req := domain.AssessmentRequest{
		TargetID:        signal.TargetID,
		SignalID:        signal.ID,
		Content:         signal.Content,
		DirectionHint:   signal.Direction,
		Tier:            tier,
		Instructions:    analyst.Instructions,
		ActiveLearnings: learnings,
	}

	return retry.Do(ctx, policy, classify, func() (*domain.AnalystAssessmentResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		start := time.Now()
		result, err := c.assessor.Assess(callCtx, req)
		metrics.AnalystAssessmentDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.AnalystAssessmentsTotal.WithLabelValues(string(tier), "failed").Inc()
			return nil, err
		}
		metrics.AnalystAssessmentsTotal.WithLabelValues(string(tier), "ok").Inc()
		return result, nil
	})
}

// StrengthFromConfidence maps confidence in [0,1] onto the 1-10 strength
// scale: round(1 + confidence*9), clamped.
func StrengthFromConfidence(confidence float64) int {
	s := int(math.Round(1 + clamp01(confidence)*9))
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}

func classifyUrgency(confidence float64) domain.Urgency {
	switch {
	case confidence >= 0.85:
		return domain.UrgencyUrgent
	case confidence >= 0.70:
		return domain.UrgencyNotable
	default:
		return domain.UrgencyRoutine
	}
}

// topReasoning returns the reasoning of the heaviest vote for the winning
// direction, kept on rejected signals for later review.
func topReasoning(summary domain.EnsembleSummary) string {
	best := ""
	bestWeight := -1.0
	for _, v := range summary.Votes {
		if v.Direction == summary.Direction && v.Weight > bestWeight && v.Reasoning != "" {
			best = v.Reasoning
			bestWeight = v.Weight
		}
	}
	if best == "" {
		return "no supporting reasoning recorded"
	}
	return best
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
