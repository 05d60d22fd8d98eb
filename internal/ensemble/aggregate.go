package ensemble

import (
	"github.com/pscheid92/signalpulse/internal/domain"
)

// MethodWeightedEnsemble names the aggregation recorded on every summary.
const MethodWeightedEnsemble = "weighted_ensemble"

// directionOrder is the fixed tie-break order.
var directionOrder = []domain.Direction{
	domain.DirectionBullish,
	domain.DirectionBearish,
	domain.DirectionNeutral,
}

// Aggregate folds the collected votes into one weighted-ensemble summary.
// The winning direction carries the largest sum of weight × confidence;
// exact ties fall back to the higher total weight, then to the gold-tier
// vote, then to the fixed bullish > bearish > neutral order.
func Aggregate(votes []domain.AnalystVote) domain.EnsembleSummary {
	summary := domain.EnsembleSummary{
		Method:    MethodWeightedEnsemble,
		Direction: domain.DirectionNeutral,
		Votes:     votes,
	}
	if len(votes) == 0 {
		return summary
	}

	score := make(map[domain.Direction]float64, 3)
	weightByDir := make(map[domain.Direction]float64, 3)
	goldVote := make(map[domain.Direction]bool, 3)
	var totalWeight, weightedConfidence float64

	for _, v := range votes {
		score[v.Direction] += v.Weight * v.Confidence
		weightByDir[v.Direction] += v.Weight
		if v.Tier == domain.TierGold {
			goldVote[v.Direction] = true
		}
		totalWeight += v.Weight
		weightedConfidence += v.Weight * v.Confidence
	}

	winner := directionOrder[0]
	for _, d := range directionOrder[1:] {
		if beats(d, winner, score, weightByDir, goldVote) {
			winner = d
		}
	}

	summary.Direction = winner
	if totalWeight > 0 {
		summary.Confidence = weightedConfidence / totalWeight
		summary.ConsensusStrength = weightByDir[winner] / totalWeight
	}
	return summary
}

func beats(a, b domain.Direction, score, weight map[domain.Direction]float64, gold map[domain.Direction]bool) bool {
	if score[a] != score[b] {
		return score[a] > score[b]
	}
	if weight[a] != weight[b] {
		return weight[a] > weight[b]
	}
	if gold[a] != gold[b] {
		return gold[a]
	}
	// Candidates are walked in the fixed order, so the earlier one stands.
	return false
}
