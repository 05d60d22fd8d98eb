// Package dedup implements the four-layer deduplication gate that decides
// whether a crawled item carries new information before a signal is created.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/pscheid92/signalpulse/internal/domain"
	"github.com/pscheid92/signalpulse/internal/fingerprint"
	"github.com/pscheid92/signalpulse/internal/metrics"
)

// Gate runs the layered duplicate checks in strict order, short-circuiting
// on the first match:
//
//  1. exact hash, same source (ledger lookup)
//  2. cross-source hash, same target, rolling window
//  3. fuzzy title similarity against the window's fingerprints
//  4. key-phrase overlap against the same window
//
// Ledger reads go through a circuit breaker. When lookups fail or the
// breaker is open the gate fails open: the item is admitted and the created
// signal carries a degraded marker for later reconciliation.
type Gate struct {
	seen    domain.SeenItemRepository
	prints  domain.FingerprintRepository
	signals domain.SignalRepository
	clock   clockwork.Clock
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	tally Tally
}

// Tally accumulates gate decisions since startup. It mirrors the prometheus
// counters for callers that want an in-process snapshot per crawl run.
type Tally struct {
	Accepted   uint64            `json:"accepted"`
	Degraded   uint64            `json:"degraded"`
	Rejections map[string]uint64 `json:"rejections"`
}

// NewGate creates the deduplication gate.
func NewGate(seen domain.SeenItemRepository, prints domain.FingerprintRepository, signals domain.SignalRepository, clock clockwork.Clock) *Gate {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dedup-ledger",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Dedup ledger breaker state changed", "from", from.String(), "to", to.String())
			metrics.DedupLedgerBreakerState.Set(breakerStateToFloat(to))
		},
	})

	return &Gate{
		seen:    seen,
		prints:  prints,
		signals: signals,
		clock:   clock,
		breaker: breaker,
		tally:   Tally{Rejections: make(map[string]uint64)},
	}
}

// Tally returns a snapshot of the gate's decision counters.
func (g *Gate) Tally() Tally {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := g.tally
	snapshot.Rejections = make(map[string]uint64, len(g.tally.Rejections))
	for reason, n := range g.tally.Rejections {
		snapshot.Rejections[reason] = n
	}
	return snapshot
}

func (g *Gate) recordRejection(reason string) {
	metrics.DedupRejectionsTotal.WithLabelValues(reason).Inc()
	g.mu.Lock()
	g.tally.Rejections[reason]++
	g.mu.Unlock()
}

func (g *Gate) recordAccepted(degraded bool) {
	metrics.DedupAcceptedTotal.Inc()
	if degraded {
		metrics.DedupDegradedTotal.Inc()
	}
	g.mu.Lock()
	g.tally.Accepted++
	if degraded {
		g.tally.Degraded++
	}
	g.mu.Unlock()
}

func breakerStateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// ProcessItem runs one candidate through the gate. On acceptance it writes
// the ledger row and fingerprint and creates a pending signal.
func (g *Gate) ProcessItem(ctx context.Context, source *domain.Source, item domain.CrawledItem) (*domain.ProcessItemResult, error) {
	start := g.clock.Now()
	defer func() {
		metrics.DedupCheckDuration.Observe(g.clock.Since(start).Seconds())
	}()

	contentHash := fingerprint.Hash(item.Content)
	if item.Title != "" {
		// Articles match on the title+capped-content digest so that a
		// re-crawl with an updated footer still collides.
		contentHash = fingerprint.CombinedHash(item.Title, item.Content)
	}

	now := g.clock.Now()
	window := now.Add(-time.Duration(source.Dedup.DedupHoursBack) * time.Hour)
	degraded := false

	// Layer 1: exact hash, same source.
	seen, err := g.findSeen(ctx, source.ID, contentHash, now)
	if err != nil {
		degraded = true
		slog.WarnContext(ctx, "Dedup ledger unavailable, admitting item degraded",
			"source", source.Slug, "error", err)
	} else if seen != nil {
		g.recordRejection(domain.ReasonExactHashMatch)
		return &domain.ProcessItemResult{
			Reason:          domain.ReasonExactHashMatch,
			SimilarSignalID: seen.SignalID,
		}, nil
	}

	// Layer 2: same hash from a different source on the same target.
	if source.Dedup.CrossSourceDedup {
		match, err := g.findCrossSource(ctx, source, contentHash, window)
		switch {
		case err != nil:
			degraded = true
			slog.WarnContext(ctx, "Cross-source dedup check degraded",
				"source", source.Slug, "error", err)
		case match != nil:
			g.recordRejection(domain.ReasonCrossSourceDuplicate)
			return &domain.ProcessItemResult{
				Reason:          domain.ReasonCrossSourceDuplicate,
				SimilarSignalID: match.SignalID,
			}, nil
		}
	}

	// Layers 3 and 4 share one rolling-window fingerprint scan. The title
	// check honors fuzzy_dedup_enabled; phrase overlap always runs.
	fp := fingerprint.Extract(item.Title, item.Content)
	titleNormalized := fingerprint.Normalize(item.Title)

	recent, err := g.prints.ListWindow(ctx, source.TargetID, window)
	if err != nil {
		degraded = true
		slog.WarnContext(ctx, "Fingerprint window scan degraded",
			"source", source.Slug, "error", err)
	} else {
		if reject := g.fuzzyReject(titleNormalized, fp.KeyPhrases, recent, source.Dedup); reject != nil {
			g.recordRejection(reject.Reason)
			return reject, nil
		}
	}

	// All layers passed: write the ledger row. The insert is atomic on
	// (source_id, content_hash), so of two crawlers racing on the same
	// item exactly one wins; the loser observes a layer-1 duplicate here.
	if !degraded {
		inserted, existing, err := g.seen.Insert(ctx, source.ID, contentHash, now)
		if err != nil {
			degraded = true
			slog.WarnContext(ctx, "Ledger insert failed, admitting item degraded",
				"source", source.Slug, "error", err)
		} else if !inserted {
			g.recordRejection(domain.ReasonExactHashMatch)
			return &domain.ProcessItemResult{
				Reason:          domain.ReasonExactHashMatch,
				SimilarSignalID: existing.SignalID,
			}, nil
		}
	}

	// Admit as a new signal.
	signal := &domain.Signal{
		ID:            uuid.New(),
		TargetID:      source.TargetID,
		SourceID:      source.ID,
		Title:         item.Title,
		Content:       item.Content,
		Direction:     domain.DirectionNeutral,
		Disposition:   domain.DispositionPending,
		IsTest:        source.IsTest,
		DedupDegraded: degraded,
		DetectedAt:    itemDetectedAt(item, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.signals.Create(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to create signal: %w", err)
	}

	fpRow := &domain.SignalFingerprint{
		SignalID:        signal.ID,
		TargetID:        source.TargetID,
		TitleNormalized: titleNormalized,
		KeyPhrases:      fp.KeyPhrases,
		FingerprintHash: fp.Hash,
		WordCount:       fp.WordCount,
		CreatedAt:       now,
	}
	if err := g.prints.Create(ctx, fpRow); err != nil {
		return nil, fmt.Errorf("failed to create fingerprint: %w", err)
	}

	if !degraded {
		if err := g.seen.LinkSignal(ctx, source.ID, contentHash, signal.ID); err != nil {
			slog.WarnContext(ctx, "Failed to link seen item to signal",
				"signal", signal.ID, "error", err)
		}
	}

	g.recordAccepted(degraded)
	metrics.SignalsCreatedTotal.WithLabelValues(fmt.Sprintf("%t", signal.IsTest)).Inc()

	return &domain.ProcessItemResult{
		IsNew:         true,
		SignalID:      &signal.ID,
		DedupDegraded: degraded,
	}, nil
}

// findSeen runs the layer-1 ledger lookup through the circuit breaker.
func (g *Gate) findSeen(ctx context.Context, sourceID uuid.UUID, contentHash string, now time.Time) (*domain.SourceSeenItem, error) {
	res, err := g.breaker.Execute(func() (any, error) {
		return g.seen.Find(ctx, sourceID, contentHash, now)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("dedup ledger breaker open: %w", err)
		}
		return nil, err
	}
	return res.(*domain.SourceSeenItem), nil
}

func (g *Gate) findCrossSource(ctx context.Context, source *domain.Source, contentHash string, since time.Time) (*domain.SourceSeenItem, error) {
	res, err := g.breaker.Execute(func() (any, error) {
		match, err := g.seen.FindCrossSource(ctx, source.TargetID, source.ID, contentHash, since)
		if err != nil {
			return nil, err
		}
		return match, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.SourceSeenItem), nil
}

// fuzzyReject runs layers 3 and 4 against the window's fingerprints.
func (g *Gate) fuzzyReject(titleNormalized string, keyPhrases []string, recent []domain.SignalFingerprint, cfg domain.DedupConfig) *domain.ProcessItemResult {
	// Layer 3: fuzzy title match.
	if cfg.FuzzyDedupEnabled && titleNormalized != "" {
		candidate := fingerprint.TokenSet(titleNormalized)
		bestSim := 0.0
		var bestID uuid.UUID
		for _, fp := range recent {
			sim := fingerprint.Jaccard(candidate, fingerprint.TokenSet(fp.TitleNormalized))
			if sim > bestSim {
				bestSim = sim
				bestID = fp.SignalID
			}
		}
		if bestSim >= cfg.TitleSimilarityThreshold {
			id := bestID
			return &domain.ProcessItemResult{
				Reason:          domain.ReasonFuzzyTitleMatch,
				SimilarSignalID: &id,
			}
		}
	}

	// Layer 4: key-phrase overlap.
	if len(keyPhrases) > 0 {
		for _, fp := range recent {
			if fingerprint.OverlapRatio(keyPhrases, fp.KeyPhrases) >= cfg.PhraseOverlapThreshold {
				id := fp.SignalID
				return &domain.ProcessItemResult{
					Reason:          domain.ReasonPhraseOverlap,
					SimilarSignalID: &id,
				}
			}
		}
	}

	return nil
}

func itemDetectedAt(item domain.CrawledItem, now time.Time) time.Time {
	if !item.PublishedAt.IsZero() {
		return item.PublishedAt
	}
	return now
}
