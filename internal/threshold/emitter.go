package threshold

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/metrics"
)

// Emitter turns a passing evaluation into an emitted prediction, consuming
// the contributing predictors in the same transaction.
type Emitter struct {
	predictions domain.PredictionRepository
	notifier    domain.Notifier
	clock       clockwork.Clock
}

// NewEmitter creates a prediction emitter. notifier may be nil.
func NewEmitter(predictions domain.PredictionRepository, notifier domain.Notifier, clock clockwork.Clock) *Emitter {
	return &Emitter{predictions: predictions, notifier: notifier, clock: clock}
}

// directionMap translates the internal bucket direction to the outward call.
var directionMap = map[domain.Direction]domain.PredictionDirection{
	domain.DirectionBullish: domain.PredictionUp,
	domain.DirectionBearish: domain.PredictionDown,
	domain.DirectionNeutral: domain.PredictionFlat,
}

// Emit creates the prediction for a passing evaluation and atomically marks
// every winning-direction contributor consumed. A concurrent emission that
// already consumed the contributors surfaces as ErrPredictorsConsumed; the
// caller treats that as losing the race, not as a failure.
func (e *Emitter) Emit(ctx context.Context, result Result) (*domain.Prediction, error) {
	eval := result.Evaluation
	if !eval.MeetsThreshold {
		return nil, fmt.Errorf("evaluation for target %s does not meet threshold", eval.TargetID)
	}
	if len(result.Contributors) == 0 {
		return nil, fmt.Errorf("evaluation for target %s has no contributors", eval.TargetID)
	}

	ids := make([]uuid.UUID, len(result.Contributors))
	isTest := true
	for i, p := range result.Contributors {
		ids[i] = p.ID
		if !p.IsTest {
			isTest = false
		}
	}

	now := e.clock.Now()
	summary := flattenEnsembles(eval, result.Contributors)
	prediction := &domain.Prediction{
		ID:              uuid.New(),
		TargetID:        eval.TargetID,
		Direction:       directionMap[eval.DominantDirection],
		Confidence:      eval.DirectionConsensus,
		TimeframeHours:  int(eval.Config.PredictorTTLHours),
		AnalystEnsemble: summary,
		Status:          domain.PredictionActive,
		IsTest:          isTest,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	eval.PredictionID = &prediction.ID
	prediction.Snapshot = domain.PredictionSnapshot{
		PredictorIDs: ids,
		Evaluation:   eval,
		Ensemble:     summary,
	}

	if err := e.predictions.CreateConsuming(ctx, prediction, ids); err != nil {
		return nil, err
	}

	metrics.PredictionsEmittedTotal.WithLabelValues(string(prediction.Direction)).Inc()
	metrics.PredictorsConsumedTotal.Add(float64(len(ids)))
	slog.InfoContext(ctx, "Prediction emitted",
		"prediction", prediction.ID, "target", prediction.TargetID,
		"direction", prediction.Direction, "confidence", prediction.Confidence,
		"consumed", len(ids))

	if e.notifier != nil {
		snapshot := prediction.Snapshot
		if err := e.notifier.PredictionEmitted(ctx, prediction, &snapshot); err != nil {
			// Delivery is the collaborator's concern; the emission stands.
			slog.WarnContext(ctx, "Prediction notification failed",
				"prediction", prediction.ID, "error", err)
		}
	}

	return prediction, nil
}

// flattenEnsembles merges the contributors' per-signal analyst breakdowns
// into the prediction-level summary.
func flattenEnsembles(eval domain.ThresholdEvaluation, contributors []domain.Predictor) domain.EnsembleSummary {
	summary := domain.EnsembleSummary{
		Method:            "weighted_ensemble",
		Direction:         eval.DominantDirection,
		Confidence:        eval.DirectionConsensus,
		ConsensusStrength: eval.DirectionConsensus,
	}
	for _, p := range contributors {
		summary.Votes = append(summary.Votes, p.Ensemble.Votes...)
		summary.MissingVotes += p.Ensemble.MissingVotes
	}
	return summary
}
