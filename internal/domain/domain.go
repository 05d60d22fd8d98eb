package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Enumerations ---

// Direction is the directional read of a signal or predictor.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// PredictionDirection is the outward-facing direction of an emitted prediction.
type PredictionDirection string

const (
	PredictionUp   PredictionDirection = "up"
	PredictionDown PredictionDirection = "down"
	PredictionFlat PredictionDirection = "flat"
)

// Disposition is a signal's processing state. It only moves forward through
// the listed order; the one exception is the TTL sweep, which may expire a
// signal straight out of pending or processing.
type Disposition string

const (
	DispositionPending          Disposition = "pending"
	DispositionProcessing       Disposition = "processing"
	DispositionPredictorCreated Disposition = "predictor_created"
	DispositionRejected         Disposition = "rejected"
	DispositionReviewPending    Disposition = "review_pending"
	DispositionExpired          Disposition = "expired"
)

// PredictorStatus is a predictor's lifecycle state.
type PredictorStatus string

const (
	PredictorActive      PredictorStatus = "active"
	PredictorConsumed    PredictorStatus = "consumed"
	PredictorExpired     PredictorStatus = "expired"
	PredictorInvalidated PredictorStatus = "invalidated"
)

// PredictionStatus is an emitted prediction's lifecycle state. Outcome
// transitions (resolved/expired) are owned by the external outcome tracker.
type PredictionStatus string

const (
	PredictionActive    PredictionStatus = "active"
	PredictionResolved  PredictionStatus = "resolved"
	PredictionExpired   PredictionStatus = "expired"
	PredictionCancelled PredictionStatus = "cancelled"
)

// Urgency classifies how actionable a signal looks after assessment.
type Urgency string

const (
	UrgencyUrgent  Urgency = "urgent"
	UrgencyNotable Urgency = "notable"
	UrgencyRoutine Urgency = "routine"
)

// Tier is the capability/cost level of an analyst's underlying model call.
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
)

// Scope is the layer an analyst or learning is attached to. More specific
// scopes win when the same slug appears at several layers.
type Scope string

const (
	ScopeRunner   Scope = "runner"
	ScopeDomain   Scope = "domain"
	ScopeUniverse Scope = "universe"
	ScopeTarget   Scope = "target"
)

// --- Model types ---

// Source is a registered content origin (feed, API, crawler account).
type Source struct {
	ID        uuid.UUID `db:"id"`
	Slug      string    `db:"slug"`
	TargetID  uuid.UUID `db:"target_id"`
	IsTest    bool      `db:"is_test"`
	Dedup     DedupConfig
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DedupConfig is the per-source tuning of the deduplication gate.
type DedupConfig struct {
	CrossSourceDedup         bool    `db:"cross_source_dedup"`
	FuzzyDedupEnabled        bool    `db:"fuzzy_dedup_enabled"`
	TitleSimilarityThreshold float64 `db:"title_similarity_threshold"`
	PhraseOverlapThreshold   float64 `db:"phrase_overlap_threshold"`
	DedupHoursBack           int     `db:"dedup_hours_back"`
}

// DefaultDedupConfig returns the gate defaults used when a source has no
// explicit overrides.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		CrossSourceDedup:         true,
		FuzzyDedupEnabled:        true,
		TitleSimilarityThreshold: 0.85,
		PhraseOverlapThreshold:   0.70,
		DedupHoursBack:           72,
	}
}

// CrawledItem is one raw item handed over by the crawler collaborator.
type CrawledItem struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	URL         string            `json:"url"`
	PublishedAt time.Time         `json:"published_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Signal is one raw observation about a target that survived deduplication.
type Signal struct {
	ID                  uuid.UUID   `db:"id"`
	TargetID            uuid.UUID   `db:"target_id"`
	SourceID            uuid.UUID   `db:"source_id"`
	Title               string      `db:"title"`
	Content             string      `db:"content"`
	Direction           Direction   `db:"direction"`
	Urgency             *Urgency    `db:"urgency"`
	Disposition         Disposition `db:"disposition"`
	RejectionReason     *string     `db:"rejection_reason"`
	IsTest              bool        `db:"is_test"`
	DedupDegraded       bool        `db:"dedup_degraded"`
	ProcessingWorker    *string     `db:"processing_worker"`
	ProcessingStartedAt *time.Time  `db:"processing_started_at"`
	DetectedAt          time.Time   `db:"detected_at"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

// SignalFingerprint is the fuzzy-matchable digest of a signal, written once
// at admission and scanned by the gate's rolling-window checks.
type SignalFingerprint struct {
	SignalID        uuid.UUID `db:"signal_id"`
	TargetID        uuid.UUID `db:"target_id"`
	TitleNormalized string    `db:"title_normalized"`
	KeyPhrases      []string  `db:"key_phrases"`
	FingerprintHash string    `db:"fingerprint_hash"`
	WordCount       int       `db:"word_count"`
	CreatedAt       time.Time `db:"created_at"`
}

// SourceSeenItem is one row of the exact-hash ledger. (source_id,
// content_hash) is unique; a second insert must surface as a conflict.
type SourceSeenItem struct {
	SourceID    uuid.UUID  `db:"source_id"`
	ContentHash string     `db:"content_hash"`
	FirstSeenAt time.Time  `db:"first_seen_at"`
	LastSeenAt  time.Time  `db:"last_seen_at"`
	SignalID    *uuid.UUID `db:"signal_id"`
}

// Predictor is one ensemble assessment of a single signal, with a TTL.
type Predictor struct {
	ID                     uuid.UUID       `db:"id"`
	SignalID               uuid.UUID       `db:"signal_id"`
	TargetID               uuid.UUID       `db:"target_id"`
	Direction              Direction       `db:"direction"`
	Strength               int             `db:"strength"`
	Confidence             float64         `db:"confidence"`
	Status                 PredictorStatus `db:"status"`
	Ensemble               EnsembleSummary `db:"ensemble"`
	IsTest                 bool            `db:"is_test"`
	ExpiresAt              time.Time       `db:"expires_at"`
	ConsumedAt             *time.Time      `db:"consumed_at"`
	ConsumedByPredictionID *uuid.UUID      `db:"consumed_by_prediction_id"`
	CreatedAt              time.Time       `db:"created_at"`
}

// Prediction is an emitted, actionable directional call for a target.
type Prediction struct {
	ID              uuid.UUID           `db:"id"`
	TargetID        uuid.UUID           `db:"target_id"`
	Direction       PredictionDirection `db:"direction"`
	Confidence      float64             `db:"confidence"`
	TimeframeHours  int                 `db:"timeframe_hours"`
	AnalystEnsemble EnsembleSummary     `db:"analyst_ensemble"`
	Snapshot        PredictionSnapshot  `db:"snapshot"`
	Status          PredictionStatus    `db:"status"`
	IsTest          bool                `db:"is_test"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

// ThresholdConfig tunes the per-target consensus gate.
type ThresholdConfig struct {
	MinPredictors         int     `json:"min_predictors"`
	MinCombinedStrength   float64 `json:"min_combined_strength"`
	MinDirectionConsensus float64 `json:"min_direction_consensus"`
	PredictorTTLHours     float64 `json:"predictor_ttl_hours"`
	TimeDecayRate         float64 `json:"time_decay_rate"`
}

// DefaultThresholdConfig returns the documented defaults.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MinPredictors:         5,
		MinCombinedStrength:   15,
		MinDirectionConsensus: 0.6,
		PredictorTTLHours:     24,
		TimeDecayRate:         0.05,
	}
}

// Analyst is a weighted perspective registered at some scope layer.
type Analyst struct {
	ID           uuid.UUID `db:"id"`
	Slug         string    `db:"slug"`
	Scope        Scope     `db:"scope"`
	ScopeRef     string    `db:"scope_ref"`
	Weight       float64   `db:"weight"`
	Tier         Tier      `db:"tier"`
	Instructions string    `db:"instructions"`
	Enabled      bool      `db:"enabled"`
	CreatedAt    time.Time `db:"created_at"`
}

// Learning is a promoted piece of reviewer feedback fed back into
// assessment calls at its scope.
type Learning struct {
	ID        uuid.UUID `db:"id"`
	Scope     Scope     `db:"scope"`
	ScopeRef  string    `db:"scope_ref"`
	Content   string    `db:"content"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// --- Shared value types ---

// ProcessItemResult is what the gate returns for one candidate item.
type ProcessItemResult struct {
	IsNew           bool       `json:"is_new"`
	SignalID        *uuid.UUID `json:"signal_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	SimilarSignalID *uuid.UUID `json:"similar_signal_id,omitempty"`
	DedupDegraded   bool       `json:"dedup_degraded,omitempty"`
}

// Rejection reasons recorded by the gate, one per layer.
const (
	ReasonExactHashMatch       = "exact_hash_match"
	ReasonCrossSourceDuplicate = "cross_source_duplicate"
	ReasonFuzzyTitleMatch      = "fuzzy_title_match"
	ReasonPhraseOverlap        = "phrase_overlap"
)

// AssessmentRequest is the payload for one analyst assessment call.
type AssessmentRequest struct {
	TargetID        uuid.UUID `json:"target_id"`
	SignalID        uuid.UUID `json:"signal_id"`
	Content         string    `json:"content"`
	DirectionHint   Direction `json:"direction_hint"`
	Tier            Tier      `json:"tier"`
	Instructions    string    `json:"tier_instructions"`
	ActiveLearnings []string  `json:"active_learnings"`
}

// AnalystAssessmentResult is the raw judgment returned by the assessment
// collaborator for one analyst.
type AnalystAssessmentResult struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	KeyFactors []string  `json:"key_factors"`
	Risks      []string  `json:"risks"`
}

// AnalystVote is one analyst's weighted contribution to an aggregation.
type AnalystVote struct {
	Slug       string    `json:"slug"`
	Tier       Tier      `json:"tier"`
	Weight     float64   `json:"weight"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
}

// EnsembleSummary is the structured per-analyst breakdown attached to a
// predictor decision and later to an emitted prediction.
type EnsembleSummary struct {
	Method            string        `json:"method"`
	Direction         Direction     `json:"direction"`
	Confidence        float64       `json:"confidence"`
	ConsensusStrength float64       `json:"consensus_strength"`
	MissingVotes      int           `json:"missing_votes"`
	Votes             []AnalystVote `json:"votes"`
}

// ThresholdEvaluation is the outcome of one per-target consensus pass.
type ThresholdEvaluation struct {
	TargetID           uuid.UUID       `json:"target_id"`
	EvaluatedAt        time.Time       `json:"evaluated_at"`
	ActiveCount        int             `json:"active_count"`
	CombinedStrength   float64         `json:"combined_strength"`
	WeightedBullish    float64         `json:"weighted_bullish"`
	WeightedBearish    float64         `json:"weighted_bearish"`
	WeightedNeutral    float64         `json:"weighted_neutral"`
	TotalWeight        float64         `json:"total_weight"`
	DirectionConsensus float64         `json:"direction_consensus"`
	DominantDirection  Direction       `json:"dominant_direction"`
	MeetsThreshold     bool            `json:"meets_threshold"`
	Config             ThresholdConfig `json:"config"`
	PredictionID       *uuid.UUID      `json:"prediction_id,omitempty"`
}

// PredictionSnapshot is the explainability record handed to the notification
// collaborator alongside an emitted prediction.
type PredictionSnapshot struct {
	PredictorIDs []uuid.UUID         `json:"predictor_ids"`
	Evaluation   ThresholdEvaluation `json:"evaluation"`
	Ensemble     EnsembleSummary     `json:"ensemble"`
}

// --- Repository interfaces ---

// SourceRepository abstracts source registry persistence.
type SourceRepository interface {
	GetByID(ctx context.Context, sourceID uuid.UUID) (*Source, error)
	GetBySlug(ctx context.Context, slug string) (*Source, error)
	List(ctx context.Context) ([]Source, error)
}

// SeenItemRepository abstracts the exact-hash ledger.
type SeenItemRepository interface {
	// Find looks up the (sourceID, contentHash) pair, bumping
	// last_seen_at on a hit. Returns (nil, nil) when absent.
	Find(ctx context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (*SourceSeenItem, error)
	// Insert records (sourceID, contentHash) atomically. When the pair
	// already exists it returns inserted=false and the existing row,
	// leaving first_seen_at untouched.
	Insert(ctx context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (inserted bool, existing *SourceSeenItem, err error)
	// FindCrossSource looks up the same hash for a different source on the
	// same target within the window.
	FindCrossSource(ctx context.Context, targetID, excludeSourceID uuid.UUID, contentHash string, since time.Time) (*SourceSeenItem, error)
	LinkSignal(ctx context.Context, sourceID uuid.UUID, contentHash string, signalID uuid.UUID) error
}

// FingerprintRepository abstracts fingerprint persistence and the
// rolling-window scan used by the fuzzy layers.
type FingerprintRepository interface {
	Create(ctx context.Context, fp *SignalFingerprint) error
	ListWindow(ctx context.Context, targetID uuid.UUID, since time.Time) ([]SignalFingerprint, error)
}

// SignalRepository abstracts signal persistence and the lifecycle state machine.
type SignalRepository interface {
	Create(ctx context.Context, signal *Signal) error
	GetByID(ctx context.Context, signalID uuid.UUID) (*Signal, error)
	// Claim atomically moves a signal to processing for the given worker.
	// It succeeds for pending signals and for processing signals whose
	// claim is older than staleAfter (crash recovery). Returns
	// ErrSignalClaimed when another worker holds a live claim, and
	// ErrSignalTerminal when the signal already reached a terminal state.
	Claim(ctx context.Context, signalID uuid.UUID, worker string, staleAfter time.Duration) (*Signal, error)
	// NextPending claims the oldest claimable signal, or ErrNoPendingSignals.
	NextPending(ctx context.Context, worker string, staleAfter time.Duration) (*Signal, error)
	// Finish moves a claimed signal to a terminal disposition.
	Finish(ctx context.Context, signalID uuid.UUID, disposition Disposition, urgency *Urgency, reason *string) error
	// ExpireStale moves pending/processing signals older than ttl to expired.
	ExpireStale(ctx context.Context, ttl time.Duration) (int64, error)
	ListByTarget(ctx context.Context, targetID uuid.UUID, disposition Disposition, limit int) ([]Signal, error)
}

// PredictorRepository abstracts predictor persistence.
type PredictorRepository interface {
	Create(ctx context.Context, predictor *Predictor) error
	GetByID(ctx context.Context, predictorID uuid.UUID) (*Predictor, error)
	// ListActive returns predictors with status=active and expires_at in
	// the future. TTL-age exclusion on top of that is the evaluator's job.
	ListActive(ctx context.Context, targetID uuid.UUID) ([]Predictor, error)
	ListByTarget(ctx context.Context, targetID uuid.UUID, status PredictorStatus, limit int) ([]Predictor, error)
	Invalidate(ctx context.Context, predictorID uuid.UUID) error
	// ExpireStale flips status on active predictors past their expiry.
	ExpireStale(ctx context.Context) (int64, error)
}

// PredictionRepository abstracts prediction persistence.
type PredictionRepository interface {
	// CreateConsuming inserts the prediction and marks every contributing
	// predictor consumed in one transaction. If any contributor is no
	// longer active the whole transaction rolls back with
	// ErrPredictorsConsumed.
	CreateConsuming(ctx context.Context, prediction *Prediction, contributorIDs []uuid.UUID) error
	GetByID(ctx context.Context, predictionID uuid.UUID) (*Prediction, error)
	// HasOpen reports whether an unresolved prediction exists for the target.
	HasOpen(ctx context.Context, targetID uuid.UUID) (bool, error)
	ListByTarget(ctx context.Context, targetID uuid.UUID, limit int) ([]Prediction, error)
}

// AnalystRepository abstracts the analyst registry.
type AnalystRepository interface {
	ListEnabled(ctx context.Context) ([]Analyst, error)
}

// LearningRepository abstracts promoted learnings.
type LearningRepository interface {
	ListActive(ctx context.Context) ([]Learning, error)
}

// --- Collaborator interfaces ---

// Assessor is the external assessment collaborator (the model call). It is a
// black box with bounded latency; failures and timeouts are expected.
type Assessor interface {
	Assess(ctx context.Context, req AssessmentRequest) (*AnalystAssessmentResult, error)
}

// Notifier receives emitted predictions. Delivery, formatting and fan-out are
// entirely owned by the collaborator.
type Notifier interface {
	PredictionEmitted(ctx context.Context, prediction *Prediction, snapshot *PredictionSnapshot) error
}

// TargetLocker serializes the read-evaluate-consume-emit critical section per
// target. Acquire failure means another evaluation is in flight.
type TargetLocker interface {
	WithLock(ctx context.Context, targetID uuid.UUID, fn func(ctx context.Context) error) error
}
