package threshold

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/signalpulse/internal/adapter/memory"
	"github.com/pscheid92/signalpulse/internal/domain"
)

type capturingNotifier struct {
	prediction *domain.Prediction
	snapshot   *domain.PredictionSnapshot
}

func (n *capturingNotifier) PredictionEmitted(_ context.Context, p *domain.Prediction, s *domain.PredictionSnapshot) error {
	n.prediction = p
	n.snapshot = s
	return nil
}

func TestEmit_ConsumesContributorsAndNotifies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	notifier := &capturingNotifier{}
	emitter := NewEmitter(store.Predictions(), notifier, clock)

	targetID := uuid.New()
	now := clock.Now()
	predictors := make([]domain.Predictor, 0, 5)
	for i := 0; i < 4; i++ {
		p := activePredictor(targetID, domain.DirectionBullish, 7, 0, now)
		p.Ensemble = domain.EnsembleSummary{Votes: []domain.AnalystVote{{Slug: "momentum", Direction: domain.DirectionBullish, Weight: 1, Confidence: 0.8}}}
		require.NoError(t, store.Predictors().Create(context.Background(), &p))
		predictors = append(predictors, p)
	}
	bearish := activePredictor(targetID, domain.DirectionBearish, 3, 0, now)
	require.NoError(t, store.Predictors().Create(context.Background(), &bearish))
	predictors = append(predictors, bearish)

	result := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now)
	require.True(t, result.Evaluation.MeetsThreshold)

	prediction, err := emitter.Emit(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, domain.PredictionUp, prediction.Direction)
	assert.InDelta(t, result.Evaluation.DirectionConsensus, prediction.Confidence, 1e-9)
	assert.Equal(t, 24, prediction.TimeframeHours)
	assert.Len(t, prediction.Snapshot.PredictorIDs, 4)
	assert.Len(t, prediction.AnalystEnsemble.Votes, 4)
	require.NotNil(t, prediction.Snapshot.Evaluation.PredictionID)
	assert.Equal(t, prediction.ID, *prediction.Snapshot.Evaluation.PredictionID)

	// The emitter stamps the row; the repository stores it verbatim.
	assert.True(t, prediction.CreatedAt.Equal(clock.Now()))
	assert.True(t, prediction.UpdatedAt.Equal(clock.Now()))
	stored, err := store.Predictions().GetByID(context.Background(), prediction.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(clock.Now()))

	// All winning-direction contributors are consumed; the bearish one is not.
	for _, p := range result.Contributors {
		got, err := store.Predictors().GetByID(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PredictorConsumed, got.Status)
		require.NotNil(t, got.ConsumedByPredictionID)
		assert.Equal(t, prediction.ID, *got.ConsumedByPredictionID)
	}
	got, err := store.Predictors().GetByID(context.Background(), bearish.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictorActive, got.Status)

	require.NotNil(t, notifier.prediction)
	assert.Equal(t, prediction.ID, notifier.prediction.ID)
	require.NotNil(t, notifier.snapshot)
	assert.Len(t, notifier.snapshot.PredictorIDs, 4)
}

func TestEmit_LosingRacerSeesPredictorsConsumed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	emitter := NewEmitter(store.Predictions(), nil, clock)

	targetID := uuid.New()
	now := clock.Now()
	predictors := make([]domain.Predictor, 0, 5)
	for i := 0; i < 5; i++ {
		p := activePredictor(targetID, domain.DirectionBearish, 7, 0, now)
		require.NoError(t, store.Predictors().Create(context.Background(), &p))
		predictors = append(predictors, p)
	}

	result := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now)
	require.True(t, result.Evaluation.MeetsThreshold)

	first, err := emitter.Emit(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionDown, first.Direction)

	// A concurrent trigger that computed the same passing result loses.
	_, err = emitter.Emit(context.Background(), result)
	assert.ErrorIs(t, err, domain.ErrPredictorsConsumed)
}

func TestEmit_RefusesFailingEvaluation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	emitter := NewEmitter(store.Predictions(), nil, clock)

	result := Evaluate(uuid.New(), nil, domain.DefaultThresholdConfig(), clock.Now())
	_, err := emitter.Emit(context.Background(), result)
	assert.Error(t, err)
}

func TestEmit_TestFlagRequiresAllTestContributors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	emitter := NewEmitter(store.Predictions(), nil, clock)

	targetID := uuid.New()
	now := clock.Now()
	predictors := make([]domain.Predictor, 0, 5)
	for i := 0; i < 5; i++ {
		p := activePredictor(targetID, domain.DirectionBullish, 7, 0, now)
		p.IsTest = i != 0
		require.NoError(t, store.Predictors().Create(context.Background(), &p))
		predictors = append(predictors, p)
	}

	result := Evaluate(targetID, predictors, domain.DefaultThresholdConfig(), now)
	prediction, err := emitter.Emit(context.Background(), result)
	require.NoError(t, err)
	assert.False(t, prediction.IsTest, "one real contributor keeps the prediction real")
}
