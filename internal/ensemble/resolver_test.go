package ensemble

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

func analyst(slug string, scope domain.Scope, ref string, weight float64, tier domain.Tier) domain.Analyst {
	return domain.Analyst{
		ID:       uuid.New(),
		Slug:     slug,
		Scope:    scope,
		ScopeRef: ref,
		Weight:   weight,
		Tier:     tier,
		Enabled:  true,
	}
}

func TestResolveAnalysts_SpecificScopeShadowsSameSlug(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	targetRef := uuid.New().String()

	store.AddAnalyst(analyst("momentum", domain.ScopeRunner, DefaultRunnerRef, 1.0, domain.TierBronze))
	store.AddAnalyst(analyst("momentum", domain.ScopeTarget, targetRef, 2.5, domain.TierGold))
	store.AddAnalyst(analyst("contrarian", domain.ScopeRunner, DefaultRunnerRef, 1.0, domain.TierSilver))

	r := NewResolver(store.Analysts(), store.Learnings())
	resolved, err := r.ResolveAnalysts(context.Background(), ScopeChain{
		Runner: DefaultRunnerRef,
		Target: targetRef,
	})
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	bySlug := make(map[string]domain.Analyst, len(resolved))
	for _, a := range resolved {
		bySlug[a.Slug] = a
	}
	require.Contains(t, bySlug, "momentum")
	require.Contains(t, bySlug, "contrarian")
	assert.Equal(t, 2.5, bySlug["momentum"].Weight, "target-scoped analyst wins over runner default")
	assert.Equal(t, domain.TierGold, bySlug["momentum"].Tier)
}

func TestResolveAnalysts_UnrelatedScopeRefsExcluded(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	store.AddAnalyst(analyst("momentum", domain.ScopeTarget, uuid.New().String(), 2.0, domain.TierGold))
	store.AddAnalyst(analyst("macro", domain.ScopeUniverse, "crypto", 1.5, domain.TierSilver))

	r := NewResolver(store.Analysts(), store.Learnings())
	resolved, err := r.ResolveAnalysts(context.Background(), ScopeChain{
		Runner:   DefaultRunnerRef,
		Universe: "equities",
		Target:   uuid.New().String(),
	})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveAnalysts_SkipsDisabled(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	disabled := analyst("momentum", domain.ScopeRunner, DefaultRunnerRef, 1.0, domain.TierGold)
	disabled.Enabled = false
	store.AddAnalyst(disabled)

	r := NewResolver(store.Analysts(), store.Learnings())
	resolved, err := r.ResolveAnalysts(context.Background(), ScopeChain{Runner: DefaultRunnerRef})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveLearnings_UnionMostSpecificFirst(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	targetRef := uuid.New().String()

	store.AddLearning(domain.Learning{ID: uuid.New(), Scope: domain.ScopeRunner, ScopeRef: DefaultRunnerRef, Content: "runner note", Active: true})
	store.AddLearning(domain.Learning{ID: uuid.New(), Scope: domain.ScopeTarget, ScopeRef: targetRef, Content: "target note", Active: true})
	store.AddLearning(domain.Learning{ID: uuid.New(), Scope: domain.ScopeTarget, ScopeRef: targetRef, Content: "inactive note", Active: false})

	r := NewResolver(store.Analysts(), store.Learnings())
	learnings, err := r.ResolveLearnings(context.Background(), ScopeChain{
		Runner: DefaultRunnerRef,
		Target: targetRef,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"target note", "runner note"}, learnings)
}
