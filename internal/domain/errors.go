package domain

import "errors"

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrSignalNotFound     = errors.New("signal not found")
	ErrPredictorNotFound  = errors.New("predictor not found")
	ErrPredictionNotFound = errors.New("prediction not found")

	// ErrSignalClaimed means another worker holds a live processing claim.
	ErrSignalClaimed = errors.New("signal claimed by another worker")
	// ErrSignalTerminal means the signal already reached a terminal disposition.
	ErrSignalTerminal = errors.New("signal in terminal disposition")
	// ErrNoPendingSignals means the claim queue is empty.
	ErrNoPendingSignals = errors.New("no pending signals")

	// ErrPredictorsConsumed means a contributing predictor was consumed by a
	// concurrent evaluation; the caller should treat the emission as lost.
	ErrPredictorsConsumed = errors.New("contributing predictors already consumed")
	// ErrPredictorNotActive means a lifecycle transition targeted a
	// predictor that is no longer active.
	ErrPredictorNotActive = errors.New("predictor not active")

	// ErrEvaluationInProgress means another evaluation holds the target lock.
	ErrEvaluationInProgress = errors.New("threshold evaluation already in progress")

	// ErrTestFlagMismatch is a contract violation: a signal or predictor
	// whose is_test flag disagrees with its parent must never be persisted.
	ErrTestFlagMismatch = errors.New("is_test flag mismatch with parent")
)
