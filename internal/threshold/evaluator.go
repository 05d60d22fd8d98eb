// Package threshold computes the time-decayed weighted consensus over a
// target's active predictors and emits a prediction when every gate passes.
package threshold

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pscheid92/signalpulse/internal/domain"
)

// Result pairs the evaluation numbers with the predictors that fed the
// winning-direction bucket, which are the ones an emission consumes.
type Result struct {
	Evaluation   domain.ThresholdEvaluation
	Contributors []domain.Predictor
}

// directionOrder is the fixed dominant-direction tie-break order.
var directionOrder = []domain.Direction{
	domain.DirectionBullish,
	domain.DirectionBearish,
	domain.DirectionNeutral,
}

// Evaluate runs one consensus pass over the given predictors. It is pure:
// all inputs are explicit and nothing is mutated.
//
// Each predictor's bucket contribution is strength × exp(-time_decay_rate ×
// age_hours); the decay factor halves roughly every 14 hours at the default
// 0.05 rate. Predictors older than the TTL are excluded outright even when
// their status has not been swept yet. combinedStrength stays unweighted: it
// gates raw evidence volume, not recency.
func Evaluate(targetID uuid.UUID, predictors []domain.Predictor, cfg domain.ThresholdConfig, now time.Time) Result {
	eval := domain.ThresholdEvaluation{
		TargetID:          targetID,
		EvaluatedAt:       now,
		DominantDirection: domain.DirectionNeutral,
		Config:            cfg,
	}

	considered := make([]domain.Predictor, 0, len(predictors))
	weights := make([]float64, 0, len(predictors))
	for _, p := range predictors {
		if p.Status != domain.PredictorActive {
			continue
		}
		ageHours := now.Sub(p.CreatedAt).Hours()
		if ageHours > cfg.PredictorTTLHours {
			continue
		}
		considered = append(considered, p)
		weights = append(weights, float64(p.Strength)*math.Exp(-cfg.TimeDecayRate*ageHours))
	}

	for i, p := range considered {
		eval.ActiveCount++
		eval.CombinedStrength += float64(p.Strength)
		switch p.Direction {
		case domain.DirectionBullish:
			eval.WeightedBullish += weights[i]
		case domain.DirectionBearish:
			eval.WeightedBearish += weights[i]
		case domain.DirectionNeutral:
			eval.WeightedNeutral += weights[i]
		}
	}
	eval.TotalWeight = eval.WeightedBullish + eval.WeightedBearish + eval.WeightedNeutral

	buckets := map[domain.Direction]float64{
		domain.DirectionBullish: eval.WeightedBullish,
		domain.DirectionBearish: eval.WeightedBearish,
		domain.DirectionNeutral: eval.WeightedNeutral,
	}
	dominant := directionOrder[0]
	for _, d := range directionOrder[1:] {
		if buckets[d] > buckets[dominant] {
			dominant = d
		}
	}
	eval.DominantDirection = dominant
	if eval.TotalWeight > 0 {
		eval.DirectionConsensus = buckets[dominant] / eval.TotalWeight
	}

	eval.MeetsThreshold = eval.ActiveCount >= cfg.MinPredictors &&
		eval.CombinedStrength >= cfg.MinCombinedStrength &&
		eval.DirectionConsensus >= cfg.MinDirectionConsensus

	contributors := make([]domain.Predictor, 0, len(considered))
	for _, p := range considered {
		if p.Direction == dominant {
			contributors = append(contributors, p)
		}
	}

	return Result{Evaluation: eval, Contributors: contributors}
}
