package threshold

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/signalpulse/internal/domain"
)

func activePredictor(targetID uuid.UUID, dir domain.Direction, strength int, age time.Duration, now time.Time) domain.Predictor {
	return domain.Predictor{
		ID:        uuid.New(),
		SignalID:  uuid.New(),
		TargetID:  targetID,
		Direction: dir,
		Strength:  strength,
		Status:    domain.PredictorActive,
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now.Add(-age),
	}
}

func TestEvaluate_FivePredictorsStrongConsensusPasses(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	predictors := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 3, 0, now),
	}

	result := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now)
	eval := result.Evaluation

	assert.Equal(t, 5, eval.ActiveCount)
	assert.Equal(t, 31.0, eval.CombinedStrength)
	assert.InDelta(t, 28.0/31.0, eval.DirectionConsensus, 1e-9)
	assert.InDelta(t, 0.90, eval.DirectionConsensus, 0.01)
	assert.Equal(t, domain.DirectionBullish, eval.DominantDirection)
	assert.True(t, eval.MeetsThreshold)
	assert.Len(t, result.Contributors, 4)
}

func TestEvaluate_TooFewPredictorsFailsDespiteStrengthAndConsensus(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	predictors := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
	}

	result := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now)

	assert.GreaterOrEqual(t, result.Evaluation.CombinedStrength, 15.0)
	assert.GreaterOrEqual(t, result.Evaluation.DirectionConsensus, 0.6)
	assert.False(t, result.Evaluation.MeetsThreshold, "gates are independent and all mandatory")
}

func TestEvaluate_EachGateIsIndependent(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	cfg := domain.ThresholdConfig{
		MinPredictors:         5,
		MinCombinedStrength:   20,
		MinDirectionConsensus: 0.6,
		PredictorTTLHours:     24,
		TimeDecayRate:         0.05,
	}

	// Count and consensus pass, strength fails.
	weak := make([]domain.Predictor, 0, 5)
	for i := 0; i < 5; i++ {
		weak = append(weak, activePredictor(targetID, domain.DirectionBullish, 3, 0, now))
	}
	assert.False(t, Evaluate(targetID, weak, cfg, now).Evaluation.MeetsThreshold)

	// Count and strength pass, consensus fails.
	split := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 8, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 8, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 8, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 8, 0, now),
		activePredictor(targetID, domain.DirectionNeutral, 8, 0, now),
	}
	assert.False(t, Evaluate(targetID, split, cfg, now).Evaluation.MeetsThreshold)
}

func TestEvaluate_DecayHalvesAroundFourteenHours(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	predictors := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 1, 14*time.Hour, now),
		activePredictor(targetID, domain.DirectionBearish, 1, 0, now),
	}

	eval := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now).Evaluation

	assert.InDelta(t, math.Exp(-0.05*14), eval.WeightedBullish, 1e-9)
	assert.InDelta(t, 0.50, eval.WeightedBullish, 0.01)
	assert.InDelta(t, 1.0, eval.WeightedBearish, 1e-9)

	aged := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 1, 28*time.Hour, now),
	}
	cfg := domain.DefaultThresholdConfig()
	cfg.PredictorTTLHours = 48
	eval = Evaluate(targetID, aged, cfg, now).Evaluation
	assert.InDelta(t, 0.25, eval.WeightedBullish, 0.01)
}

func TestEvaluate_ExcludesPredictorsPastTTL(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	predictors := []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 7, 25*time.Hour, now),
		activePredictor(targetID, domain.DirectionBullish, 7, 0, now),
	}

	eval := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now).Evaluation

	assert.Equal(t, 1, eval.ActiveCount, "past-TTL predictors never count, even unswept")
	assert.Equal(t, 7.0, eval.CombinedStrength)
}

func TestEvaluate_SkipsNonActiveStatus(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	consumed := activePredictor(targetID, domain.DirectionBullish, 7, 0, now)
	consumed.Status = domain.PredictorConsumed

	eval := Evaluate(targetID, []domain.Predictor{consumed}, domain.DefaultThresholdConfig(), now).Evaluation
	assert.Zero(t, eval.ActiveCount)
}

func TestEvaluate_DominantTieBreakIsFixed(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()

	eval := Evaluate(targetID, []domain.Predictor{
		activePredictor(targetID, domain.DirectionNeutral, 5, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 5, 0, now),
	}, domain.DefaultThresholdConfig(), now).Evaluation
	assert.Equal(t, domain.DirectionBearish, eval.DominantDirection)

	eval = Evaluate(targetID, []domain.Predictor{
		activePredictor(targetID, domain.DirectionNeutral, 5, 0, now),
		activePredictor(targetID, domain.DirectionBullish, 5, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 5, 0, now),
	}, domain.DefaultThresholdConfig(), now).Evaluation
	assert.Equal(t, domain.DirectionBullish, eval.DominantDirection)
}

func TestEvaluate_BoundaryValuesAreInclusive(t *testing.T) {
	now := time.Now()
	targetID := uuid.New()
	cfg := domain.ThresholdConfig{
		MinPredictors:         2,
		MinCombinedStrength:   6,
		MinDirectionConsensus: 0.5,
		PredictorTTLHours:     24,
		TimeDecayRate:         0.05,
	}

	// Exactly at every gate: 2 predictors, strength 3+3=6, consensus 0.5.
	eval := Evaluate(targetID, []domain.Predictor{
		activePredictor(targetID, domain.DirectionBullish, 3, 0, now),
		activePredictor(targetID, domain.DirectionBearish, 3, 0, now),
	}, cfg, now).Evaluation
	assert.True(t, eval.MeetsThreshold)
}

func TestEvaluate_EmptySet(t *testing.T) {
	eval := Evaluate(uuid.New(), nil, domain.DefaultThresholdConfig(), time.Now()).Evaluation
	assert.Zero(t, eval.ActiveCount)
	assert.Zero(t, eval.DirectionConsensus)
	assert.False(t, eval.MeetsThreshold)
}
