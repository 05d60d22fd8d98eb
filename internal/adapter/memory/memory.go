// Package memory provides in-memory repository implementations for
// single-process runs and unit tests. All repositories share one store and
// are safe for concurrent use. Rows are stored exactly as handed in; like
// the postgres repositories, timestamp stamping is the caller's job.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/signalpulse/internal/domain"
)

type seenKey struct {
	SourceID    uuid.UUID
	ContentHash string
}

// Store holds every table in process memory behind one mutex. Repository
// views over it are obtained via the accessor methods.
type Store struct {
	clock clockwork.Clock

	mu          sync.Mutex
	sources     map[uuid.UUID]*domain.Source
	seenItems   map[seenKey]*domain.SourceSeenItem
	signals     map[uuid.UUID]*domain.Signal
	prints      map[uuid.UUID]*domain.SignalFingerprint
	predictors  map[uuid.UUID]*domain.Predictor
	predictions map[uuid.UUID]*domain.Prediction
	analysts    []domain.Analyst
	learnings   []domain.Learning
}

// NewStore creates an empty in-memory store.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:       clock,
		sources:     make(map[uuid.UUID]*domain.Source),
		seenItems:   make(map[seenKey]*domain.SourceSeenItem),
		signals:     make(map[uuid.UUID]*domain.Signal),
		prints:      make(map[uuid.UUID]*domain.SignalFingerprint),
		predictors:  make(map[uuid.UUID]*domain.Predictor),
		predictions: make(map[uuid.UUID]*domain.Prediction),
	}
}

func (s *Store) Sources() *SourceRepo           { return &SourceRepo{s: s} }
func (s *Store) SeenItems() *SeenItemRepo       { return &SeenItemRepo{s: s} }
func (s *Store) Fingerprints() *FingerprintRepo { return &FingerprintRepo{s: s} }
func (s *Store) Signals() *SignalRepo           { return &SignalRepo{s: s} }
func (s *Store) Predictors() *PredictorRepo     { return &PredictorRepo{s: s} }
func (s *Store) Predictions() *PredictionRepo   { return &PredictionRepo{s: s} }
func (s *Store) Analysts() *AnalystRepo         { return &AnalystRepo{s: s} }
func (s *Store) Learnings() *LearningRepo       { return &LearningRepo{s: s} }

// AddSource seeds a source row, used by tests and bootstrap code.
func (s *Store) AddSource(src *domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *src
	s.sources[src.ID] = &cp
}

// AddAnalyst seeds an analyst row.
func (s *Store) AddAnalyst(a domain.Analyst) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysts = append(s.analysts, a)
}

// AddLearning seeds a learning row.
func (s *Store) AddLearning(l domain.Learning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnings = append(s.learnings, l)
}

// --- SourceRepository ---

type SourceRepo struct{ s *Store }

var _ domain.SourceRepository = (*SourceRepo)(nil)

func (r *SourceRepo) GetByID(_ context.Context, sourceID uuid.UUID) (*domain.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src, ok := r.s.sources[sourceID]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	cp := *src
	return &cp, nil
}

func (r *SourceRepo) GetBySlug(_ context.Context, slug string) (*domain.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, src := range r.s.sources {
		if src.Slug == slug {
			cp := *src
			return &cp, nil
		}
	}
	return nil, domain.ErrSourceNotFound
}

func (r *SourceRepo) List(_ context.Context) ([]domain.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Source, 0, len(r.s.sources))
	for _, src := range r.s.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// --- SeenItemRepository ---

type SeenItemRepo struct{ s *Store }

var _ domain.SeenItemRepository = (*SeenItemRepo)(nil)

func (r *SeenItemRepo) Find(_ context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (*domain.SourceSeenItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.seenItems[seenKey{SourceID: sourceID, ContentHash: contentHash}]
	if !ok {
		return nil, nil
	}
	item.LastSeenAt = seenAt
	cp := *item
	return &cp, nil
}

func (r *SeenItemRepo) Insert(_ context.Context, sourceID uuid.UUID, contentHash string, seenAt time.Time) (bool, *domain.SourceSeenItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := seenKey{SourceID: sourceID, ContentHash: contentHash}
	if existing, ok := r.s.seenItems[key]; ok {
		existing.LastSeenAt = seenAt
		cp := *existing
		return false, &cp, nil
	}
	r.s.seenItems[key] = &domain.SourceSeenItem{
		SourceID:    sourceID,
		ContentHash: contentHash,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	}
	return true, nil, nil
}

func (r *SeenItemRepo) FindCrossSource(_ context.Context, targetID, excludeSourceID uuid.UUID, contentHash string, since time.Time) (*domain.SourceSeenItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, item := range r.s.seenItems {
		if key.ContentHash != contentHash || key.SourceID == excludeSourceID {
			continue
		}
		src, ok := r.s.sources[key.SourceID]
		if !ok || src.TargetID != targetID {
			continue
		}
		if item.FirstSeenAt.Before(since) {
			continue
		}
		cp := *item
		return &cp, nil
	}
	return nil, nil
}

func (r *SeenItemRepo) LinkSignal(_ context.Context, sourceID uuid.UUID, contentHash string, signalID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.seenItems[seenKey{SourceID: sourceID, ContentHash: contentHash}]
	if !ok {
		return nil
	}
	id := signalID
	item.SignalID = &id
	return nil
}

// --- FingerprintRepository ---

type FingerprintRepo struct{ s *Store }

var _ domain.FingerprintRepository = (*FingerprintRepo)(nil)

func (r *FingerprintRepo) Create(_ context.Context, fp *domain.SignalFingerprint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *fp
	r.s.prints[fp.SignalID] = &cp
	return nil
}

func (r *FingerprintRepo) ListWindow(_ context.Context, targetID uuid.UUID, since time.Time) ([]domain.SignalFingerprint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.SignalFingerprint, 0)
	for _, fp := range r.s.prints {
		if fp.TargetID == targetID && !fp.CreatedAt.Before(since) {
			out = append(out, *fp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- SignalRepository ---

type SignalRepo struct{ s *Store }

var _ domain.SignalRepository = (*SignalRepo)(nil)

func (r *SignalRepo) Create(_ context.Context, signal *domain.Signal) error {
	if signal.ID == uuid.Nil {
		signal.ID = uuid.New()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *signal
	r.s.signals[signal.ID] = &cp
	return nil
}

func (r *SignalRepo) GetByID(_ context.Context, signalID uuid.UUID) (*domain.Signal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sig, ok := r.s.signals[signalID]
	if !ok {
		return nil, domain.ErrSignalNotFound
	}
	cp := *sig
	return &cp, nil
}

func (r *SignalRepo) Claim(_ context.Context, signalID uuid.UUID, worker string, staleAfter time.Duration) (*domain.Signal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sig, ok := r.s.signals[signalID]
	if !ok {
		return nil, domain.ErrSignalNotFound
	}
	return r.claimLocked(sig, worker, staleAfter)
}

func (r *SignalRepo) claimLocked(sig *domain.Signal, worker string, staleAfter time.Duration) (*domain.Signal, error) {
	now := r.s.clock.Now()
	switch sig.Disposition {
	case domain.DispositionPending:
	case domain.DispositionProcessing:
		if sig.ProcessingStartedAt != nil && now.Sub(*sig.ProcessingStartedAt) < staleAfter {
			return nil, domain.ErrSignalClaimed
		}
	default:
		return nil, domain.ErrSignalTerminal
	}

	sig.Disposition = domain.DispositionProcessing
	w := worker
	sig.ProcessingWorker = &w
	startedAt := now
	sig.ProcessingStartedAt = &startedAt
	sig.UpdatedAt = now
	cp := *sig
	return &cp, nil
}

func (r *SignalRepo) NextPending(_ context.Context, worker string, staleAfter time.Duration) (*domain.Signal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()

	var oldest *domain.Signal
	for _, sig := range r.s.signals {
		claimable := sig.Disposition == domain.DispositionPending ||
			(sig.Disposition == domain.DispositionProcessing &&
				sig.ProcessingStartedAt != nil &&
				now.Sub(*sig.ProcessingStartedAt) >= staleAfter)
		if !claimable {
			continue
		}
		if oldest == nil || sig.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sig
		}
	}
	if oldest == nil {
		return nil, domain.ErrNoPendingSignals
	}
	return r.claimLocked(oldest, worker, staleAfter)
}

func (r *SignalRepo) Finish(_ context.Context, signalID uuid.UUID, disposition domain.Disposition, urgency *domain.Urgency, reason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sig, ok := r.s.signals[signalID]
	if !ok {
		return domain.ErrSignalNotFound
	}
	if sig.Disposition != domain.DispositionProcessing {
		return domain.ErrSignalTerminal
	}
	sig.Disposition = disposition
	sig.Urgency = urgency
	sig.RejectionReason = reason
	sig.UpdatedAt = r.s.clock.Now()
	return nil
}

func (r *SignalRepo) ExpireStale(_ context.Context, ttl time.Duration) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	var expired int64
	for _, sig := range r.s.signals {
		if sig.Disposition != domain.DispositionPending && sig.Disposition != domain.DispositionProcessing {
			continue
		}
		if now.Sub(sig.CreatedAt) >= ttl {
			sig.Disposition = domain.DispositionExpired
			sig.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func (r *SignalRepo) ListByTarget(_ context.Context, targetID uuid.UUID, disposition domain.Disposition, limit int) ([]domain.Signal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Signal, 0)
	for _, sig := range r.s.signals {
		if sig.TargetID != targetID {
			continue
		}
		if disposition != "" && sig.Disposition != disposition {
			continue
		}
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- PredictorRepository ---

type PredictorRepo struct{ s *Store }

var _ domain.PredictorRepository = (*PredictorRepo)(nil)

func (r *PredictorRepo) Create(_ context.Context, p *domain.Predictor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sig, ok := r.s.signals[p.SignalID]
	if ok && sig.IsTest != p.IsTest {
		return domain.ErrTestFlagMismatch
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.s.predictors[p.ID] = &cp
	return nil
}

func (r *PredictorRepo) GetByID(_ context.Context, predictorID uuid.UUID) (*domain.Predictor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.predictors[predictorID]
	if !ok {
		return nil, domain.ErrPredictorNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PredictorRepo) ListActive(_ context.Context, targetID uuid.UUID) ([]domain.Predictor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	out := make([]domain.Predictor, 0)
	for _, p := range r.s.predictors {
		if p.TargetID == targetID && p.Status == domain.PredictorActive && p.ExpiresAt.After(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PredictorRepo) ListByTarget(_ context.Context, targetID uuid.UUID, status domain.PredictorStatus, limit int) ([]domain.Predictor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Predictor, 0)
	for _, p := range r.s.predictors {
		if p.TargetID != targetID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PredictorRepo) Invalidate(_ context.Context, predictorID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.predictors[predictorID]
	if !ok {
		return domain.ErrPredictorNotFound
	}
	if p.Status != domain.PredictorActive {
		return domain.ErrPredictorNotActive
	}
	p.Status = domain.PredictorInvalidated
	return nil
}

func (r *PredictorRepo) ExpireStale(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	var expired int64
	for _, p := range r.s.predictors {
		if p.Status == domain.PredictorActive && !p.ExpiresAt.After(now) {
			p.Status = domain.PredictorExpired
			expired++
		}
	}
	return expired, nil
}

// --- PredictionRepository ---

type PredictionRepo struct{ s *Store }

var _ domain.PredictionRepository = (*PredictionRepo)(nil)

func (r *PredictionRepo) CreateConsuming(_ context.Context, prediction *domain.Prediction, contributorIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range contributorIDs {
		p, ok := r.s.predictors[id]
		if !ok || p.Status != domain.PredictorActive {
			return domain.ErrPredictorsConsumed
		}
	}

	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	now := r.s.clock.Now()
	cp := *prediction
	r.s.predictions[prediction.ID] = &cp

	for _, id := range contributorIDs {
		p := r.s.predictors[id]
		p.Status = domain.PredictorConsumed
		consumedAt := now
		p.ConsumedAt = &consumedAt
		pid := prediction.ID
		p.ConsumedByPredictionID = &pid
	}
	return nil
}

func (r *PredictionRepo) GetByID(_ context.Context, predictionID uuid.UUID) (*domain.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.predictions[predictionID]
	if !ok {
		return nil, domain.ErrPredictionNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PredictionRepo) HasOpen(_ context.Context, targetID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.predictions {
		if p.TargetID == targetID && p.Status == domain.PredictionActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *PredictionRepo) ListByTarget(_ context.Context, targetID uuid.UUID, limit int) ([]domain.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Prediction, 0)
	for _, p := range r.s.predictions {
		if p.TargetID == targetID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- AnalystRepository / LearningRepository ---

type AnalystRepo struct{ s *Store }

var _ domain.AnalystRepository = (*AnalystRepo)(nil)

func (r *AnalystRepo) ListEnabled(_ context.Context) ([]domain.Analyst, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Analyst, 0, len(r.s.analysts))
	for _, a := range r.s.analysts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

type LearningRepo struct{ s *Store }

var _ domain.LearningRepository = (*LearningRepo)(nil)

func (r *LearningRepo) ListActive(_ context.Context) ([]domain.Learning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Learning, 0, len(r.s.learnings))
	for _, l := range r.s.learnings {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}
