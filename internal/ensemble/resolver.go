// Package ensemble resolves the analyst panel for a signal, fans the
// assessment out with bounded parallelism, aggregates the weighted votes and
// decides whether the signal mints a predictor.
package ensemble

import (
	"context"
	"fmt"

	"github.com/pscheid92/signalpulse/internal/domain"
)

// DefaultRunnerRef is the scope ref shared by runner-level analysts and
// learnings that apply everywhere.
const DefaultRunnerRef = "default"

// ScopeChain names the layered refs applicable to one signal, from the
// broadest (runner) to the most specific (target). Empty refs skip the layer.
type ScopeChain struct {
	Runner   string
	Domain   string
	Universe string
	Target   string
}

type scopeLayer struct {
	scope domain.Scope
	ref   string
}

// layers returns the chain most-specific-first, dropping empty refs.
func (c ScopeChain) layers() []scopeLayer {
	all := []scopeLayer{
		{domain.ScopeTarget, c.Target},
		{domain.ScopeUniverse, c.Universe},
		{domain.ScopeDomain, c.Domain},
		{domain.ScopeRunner, c.Runner},
	}
	out := make([]scopeLayer, 0, len(all))
	for _, l := range all {
		if l.ref != "" {
			out = append(out, l)
		}
	}
	return out
}

// Resolver merges the analyst registry and active learnings across scope
// layers into a flat effective set per evaluation.
type Resolver struct {
	analysts  domain.AnalystRepository
	learnings domain.LearningRepository
}

// NewResolver creates a scope resolver over the two registries.
func NewResolver(analysts domain.AnalystRepository, learnings domain.LearningRepository) *Resolver {
	return &Resolver{analysts: analysts, learnings: learnings}
}

// ResolveAnalysts returns the effective analyst set for a chain. Layers are
// walked most-specific-first and merged by slug with first-write-wins, so a
// target-scoped analyst shadows a runner-scoped one of the same slug while
// distinct slugs union across layers.
func (r *Resolver) ResolveAnalysts(ctx context.Context, chain ScopeChain) ([]domain.Analyst, error) {
	enabled, err := r.analysts.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysts: %w", err)
	}

	bySlug := make(map[string]struct{})
	out := make([]domain.Analyst, 0, len(enabled))
	for _, layer := range chain.layers() {
		for _, a := range enabled {
			if a.Scope != layer.scope || a.ScopeRef != layer.ref {
				continue
			}
			if _, shadowed := bySlug[a.Slug]; shadowed {
				continue
			}
			bySlug[a.Slug] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

// ResolveLearnings returns the active learning contents applicable anywhere
// on the chain, most specific first. Learnings union across layers; there is
// no shadowing.
func (r *Resolver) ResolveLearnings(ctx context.Context, chain ScopeChain) ([]string, error) {
	active, err := r.learnings.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list learnings: %w", err)
	}

	out := make([]string, 0, len(active))
	for _, layer := range chain.layers() {
		for _, l := range active {
			if l.Scope == layer.scope && l.ScopeRef == layer.ref {
				out = append(out, l.Content)
			}
		}
	}
	return out, nil
}
