package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/signalpulse/internal/adapter/memory"
	"github.com/pscheid92/signalpulse/internal/domain"
)

func newTestGate(t *testing.T) (*Gate, *memory.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	gate := NewGate(store.SeenItems(), store.Fingerprints(), store.Signals(), clock)
	return gate, store, clock
}

func seedSource(store *memory.Store, targetID uuid.UUID, slug string) *domain.Source {
	src := &domain.Source{
		ID:       uuid.New(),
		Slug:     slug,
		TargetID: targetID,
		Dedup:    domain.DefaultDedupConfig(),
	}
	store.AddSource(src)
	return src
}

func TestProcessItem_AcceptsNewItem(t *testing.T) {
	gate, store, _ := newTestGate(t)
	targetID := uuid.New()
	source := seedSource(store, targetID, "newswire")
	source.IsTest = true
	store.AddSource(source)

	result, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates on strong device sales.",
	})
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.False(t, result.DedupDegraded)
	require.NotNil(t, result.SignalID)

	signal, err := store.Signals().GetByID(context.Background(), *result.SignalID)
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionPending, signal.Disposition)
	assert.Equal(t, targetID, signal.TargetID)
	assert.True(t, signal.IsTest, "signal inherits the source test flag")
	assert.False(t, signal.DedupDegraded)
}

func TestProcessItem_RejectsExactHashMatch(t *testing.T) {
	gate, store, _ := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")
	item := domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	}

	first, err := gate.ProcessItem(context.Background(), source, item)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := gate.ProcessItem(context.Background(), source, item)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, domain.ReasonExactHashMatch, second.Reason)
	require.NotNil(t, second.SimilarSignalID)
	assert.Equal(t, *first.SignalID, *second.SimilarSignalID)
}

func TestProcessItem_ArticleHashIgnoresTrailingContentChanges(t *testing.T) {
	gate, store, _ := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")

	body := make([]byte, 0, 2600)
	for len(body) < 2500 {
		body = append(body, "acme expands production capacity "...)
	}
	item := domain.CrawledItem{Title: "Acme expands production", Content: string(body)}

	first, err := gate.ProcessItem(context.Background(), source, item)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// Re-crawl with a changed footer past the digest cap.
	item.Content = string(body) + " updated footer after republication"
	second, err := gate.ProcessItem(context.Background(), source, item)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, domain.ReasonExactHashMatch, second.Reason)
}

func TestProcessItem_RejectsCrossSourceDuplicate(t *testing.T) {
	gate, store, _ := newTestGate(t)
	targetID := uuid.New()
	sourceA := seedSource(store, targetID, "newswire")
	sourceB := seedSource(store, targetID, "aggregator")
	item := domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	}

	first, err := gate.ProcessItem(context.Background(), sourceA, item)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := gate.ProcessItem(context.Background(), sourceB, item)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, domain.ReasonCrossSourceDuplicate, second.Reason)
	require.NotNil(t, second.SimilarSignalID)
	assert.Equal(t, *first.SignalID, *second.SimilarSignalID)
}

func TestProcessItem_CrossSourceCheckHonorsDifferentTargets(t *testing.T) {
	gate, store, _ := newTestGate(t)
	sourceA := seedSource(store, uuid.New(), "newswire")
	sourceB := seedSource(store, uuid.New(), "aggregator")
	item := domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	}

	first, err := gate.ProcessItem(context.Background(), sourceA, item)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// Same hash, but the sources watch different targets.
	second, err := gate.ProcessItem(context.Background(), sourceB, item)
	require.NoError(t, err)
	assert.True(t, second.IsNew)
}

func TestProcessItem_RejectsFuzzyTitleMatch(t *testing.T) {
	gate, store, _ := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")

	first, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised",
		Content: "Acme reported revenue well above consensus estimates.",
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// One extra title token: 7 of 8 tokens shared, Jaccard 0.875.
	second, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised again",
		Content: "A rewritten take on the same story with different wording throughout.",
	})
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, domain.ReasonFuzzyTitleMatch, second.Reason)
	require.NotNil(t, second.SimilarSignalID)
	assert.Equal(t, *first.SignalID, *second.SimilarSignalID)
}

func TestProcessItem_RejectsPhraseOverlap(t *testing.T) {
	gate, store, _ := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")
	content := "Gadget Corp unveils foldable tablet lineup at annual hardware event in Berlin."

	first, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Gadget Corp Unveils Foldable Tablet",
		Content: content,
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// Untitled repost of the same body: no title to match, but the
	// key-phrase sets overlap almost completely.
	second, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Content: content,
	})
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, domain.ReasonPhraseOverlap, second.Reason)
}

func TestProcessItem_FuzzyWindowExpires(t *testing.T) {
	gate, store, clock := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")

	first, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised",
		Content: "Acme reported revenue well above consensus estimates.",
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)

	clock.Advance(time.Duration(source.Dedup.DedupHoursBack+1) * time.Hour)

	second, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised again",
		Content: "A rewritten take on the same story with different wording throughout.",
	})
	require.NoError(t, err)
	assert.True(t, second.IsNew, "fingerprints outside the rolling window no longer match")
}

func TestProcessItem_FuzzyFlagDisablesTitleLayerOnly(t *testing.T) {
	gate, store, _ := newTestGate(t)
	targetID := uuid.New()
	sourceA := seedSource(store, targetID, "newswire")

	sourceB := seedSource(store, targetID, "aggregator")
	sourceB.Dedup.CrossSourceDedup = false
	sourceB.Dedup.FuzzyDedupEnabled = false
	store.AddSource(sourceB)

	first, err := gate.ProcessItem(context.Background(), sourceA, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised",
		Content: "Acme reported revenue well above consensus estimates on strong device sales and subscriptions.",
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// Near-identical title over an unrelated body: only the title layer
	// would catch this, and it is off for the source.
	second, err := gate.ProcessItem(context.Background(), sourceB, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations analysts surprised again",
		Content: "Regulators in Brussels opened an unrelated antitrust inquiry into marketplace ranking practices yesterday.",
	})
	require.NoError(t, err)
	assert.True(t, second.IsNew)

	// Phrase overlap keeps running with the fuzzy flag off.
	third, err := gate.ProcessItem(context.Background(), sourceB, domain.CrawledItem{
		Content: "Acme reported revenue well above consensus estimates on strong device sales and subscriptions.",
	})
	require.NoError(t, err)
	assert.False(t, third.IsNew)
	assert.Equal(t, domain.ReasonPhraseOverlap, third.Reason)
}

func TestProcessItem_StampsRowTimestamps(t *testing.T) {
	gate, store, clock := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")

	result, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	})
	require.NoError(t, err)
	require.True(t, result.IsNew)

	signal, err := store.Signals().GetByID(context.Background(), *result.SignalID)
	require.NoError(t, err)
	assert.True(t, signal.CreatedAt.Equal(clock.Now()), "signal carries the gate clock's creation time")
	assert.True(t, signal.UpdatedAt.Equal(clock.Now()))

	prints, err := store.Fingerprints().ListWindow(context.Background(), source.TargetID, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, prints, 1)
	assert.True(t, prints[0].CreatedAt.Equal(clock.Now()), "fingerprint stays inside the rolling window")
}

func TestTally_CountsDecisionsPerReason(t *testing.T) {
	gate, store, _ := newTestGate(t)
	source := seedSource(store, uuid.New(), "newswire")
	item := domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	}

	first, err := gate.ProcessItem(context.Background(), source, item)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	for range 2 {
		second, err := gate.ProcessItem(context.Background(), source, item)
		require.NoError(t, err)
		require.False(t, second.IsNew)
	}

	tally := gate.Tally()
	assert.Equal(t, uint64(1), tally.Accepted)
	assert.Equal(t, uint64(0), tally.Degraded)
	assert.Equal(t, uint64(2), tally.Rejections[domain.ReasonExactHashMatch])

	// The snapshot is a copy; mutating it leaves the gate untouched.
	tally.Rejections[domain.ReasonExactHashMatch] = 99
	assert.Equal(t, uint64(2), gate.Tally().Rejections[domain.ReasonExactHashMatch])
}

type brokenSeenRepo struct{}

var errLedgerDown = errors.New("ledger down")

func (brokenSeenRepo) Find(context.Context, uuid.UUID, string, time.Time) (*domain.SourceSeenItem, error) {
	return nil, errLedgerDown
}

func (brokenSeenRepo) Insert(context.Context, uuid.UUID, string, time.Time) (bool, *domain.SourceSeenItem, error) {
	return false, nil, errLedgerDown
}

func (brokenSeenRepo) FindCrossSource(context.Context, uuid.UUID, uuid.UUID, string, time.Time) (*domain.SourceSeenItem, error) {
	return nil, errLedgerDown
}

func (brokenSeenRepo) LinkSignal(context.Context, uuid.UUID, string, uuid.UUID) error {
	return errLedgerDown
}

func TestProcessItem_FailsOpenWhenLedgerUnavailable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	gate := NewGate(brokenSeenRepo{}, store.Fingerprints(), store.Signals(), clock)
	source := seedSource(store, uuid.New(), "newswire")

	result, err := gate.ProcessItem(context.Background(), source, domain.CrawledItem{
		Title:   "Acme beats quarterly revenue expectations",
		Content: "Acme reported revenue well above consensus estimates.",
	})
	require.NoError(t, err)

	assert.True(t, result.IsNew, "ledger failures admit instead of dropping")
	assert.True(t, result.DedupDegraded)
	require.NotNil(t, result.SignalID)

	signal, err := store.Signals().GetByID(context.Background(), *result.SignalID)
	require.NoError(t, err)
	assert.True(t, signal.DedupDegraded)
}
