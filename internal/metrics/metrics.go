package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deduplication Gate Metrics
var (
	// DedupRejectionsTotal tracks gate rejections per layer
	// (exact_hash_match/cross_source_duplicate/fuzzy_title_match/phrase_overlap)
	DedupRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_rejections_total",
			Help: "Total deduplication rejections by layer reason",
		},
		[]string{"reason"},
	)

	// DedupAcceptedTotal tracks items that passed all four layers
	DedupAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_accepted_total",
			Help: "Total items accepted as new signals",
		},
	)

	// DedupDegradedTotal tracks signals admitted while the ledger was unreachable
	DedupDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_degraded_total",
			Help: "Total signals admitted while dedup checks were degraded",
		},
	)

	// DedupLedgerBreakerState tracks the ledger circuit breaker state (0=closed, 1=half-open, 2=open)
	DedupLedgerBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_ledger_breaker_state",
			Help: "Dedup ledger circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// DedupCheckDuration tracks full gate latency
	DedupCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dedup_check_duration_seconds",
			Help:    "Deduplication gate duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Signal Lifecycle Metrics
var (
	// SignalsCreatedTotal tracks signals created by test flag
	SignalsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_created_total",
			Help: "Total signals created (is_test=true/false)",
		},
		[]string{"is_test"},
	)

	// SignalDispositionsTotal tracks terminal disposition transitions
	SignalDispositionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_dispositions_total",
			Help: "Total signal disposition transitions by terminal state",
		},
		[]string{"disposition"},
	)

	// SignalClaimConflictsTotal tracks claim attempts lost to another worker
	SignalClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signal_claim_conflicts_total",
			Help: "Total signal claim attempts that lost the race to another worker",
		},
	)

	// SignalsExpiredTotal tracks signals expired by the TTL sweep
	SignalsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signals_expired_total",
			Help: "Total signals expired by the TTL sweep",
		},
	)
)

// Analyst Ensemble Metrics
var (
	// AnalystAssessmentsTotal tracks assessment calls by tier and result
	AnalystAssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_assessments_total",
			Help: "Total analyst assessment calls by tier and result (ok/failed)",
		},
		[]string{"tier", "result"},
	)

	// AnalystAssessmentDuration tracks per-call assessment latency
	AnalystAssessmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analyst_assessment_duration_seconds",
			Help:    "Analyst assessment call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// TierFallbacksTotal tracks ensemble passes downgraded to a cheaper tier
	TierFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_tier_fallbacks_total",
			Help: "Total ensemble passes that fell back to a cheaper tier",
		},
		[]string{"tier"},
	)

	// PredictorsCreatedTotal tracks minted predictors by direction
	PredictorsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictors_created_total",
			Help: "Total predictors created by direction",
		},
		[]string{"direction"},
	)
)

// Threshold Evaluation Metrics
var (
	// ThresholdEvaluationsTotal tracks evaluation passes by outcome
	// (emitted/below_threshold/open_prediction/lock_busy/consumed_race)
	ThresholdEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_evaluations_total",
			Help: "Total threshold evaluation passes by outcome",
		},
		[]string{"outcome"},
	)

	// PredictionsEmittedTotal tracks emitted predictions by direction
	PredictionsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_emitted_total",
			Help: "Total predictions emitted by direction",
		},
		[]string{"direction"},
	)

	// PredictorsConsumedTotal tracks predictors consumed by emissions
	PredictorsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predictors_consumed_total",
			Help: "Total predictors consumed by emitted predictions",
		},
	)

	// PredictorsExpiredTotal tracks predictors expired by the sweep
	PredictorsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predictors_expired_total",
			Help: "Total predictors expired by the TTL sweep",
		},
	)

	// PredictorsInvalidatedTotal tracks manual predictor invalidations
	PredictorsInvalidatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predictors_invalidated_total",
			Help: "Total predictors invalidated by manual override",
		},
	)
)

// Coordination Metrics
var (
	// SweepLeaderElections tracks successful sweep leader elections
	SweepLeaderElections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_leader_elections_total",
			Help: "Total successful sweep leader elections",
		},
	)

	// IsSweepLeader tracks whether this instance leads the sweep schedule
	IsSweepLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "is_sweep_leader",
			Help: "1 if this instance is the sweep leader, 0 otherwise",
		},
	)

	// TargetLockContention tracks evaluation lock acquisitions that found the lock held
	TargetLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "target_lock_contention_total",
			Help: "Total per-target evaluation lock acquisitions that found the lock held",
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
