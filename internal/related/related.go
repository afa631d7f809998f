// Package related resolves a search term's related terms: an exact-match
// pass against an alias index, then a fuzzy pass against an embedding
// index, deduplicated by prepared text keeping the maximum weight seen.
package related

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryerr"
	"github.com/sgx-labs/convsearch/internal/term"
)

// Config bounds how much the fuzzy pass is allowed to contribute.
type Config struct {
	MaxFuzzyMatches int
	MinFuzzyScore   float64
}

// DefaultConfig mirrors the teacher's hybrid-search defaults: a handful of
// fuzzy neighbors, admitted only above a fairly high similarity floor.
var DefaultConfig = Config{MaxFuzzyMatches: 5, MinFuzzyScore: 0.7}

// Resolver resolves related terms for a SearchTerm against an alias index
// and a fuzzy embedding index.
type Resolver struct {
	Alias extern.TermsToRelatedTerms
	Fuzzy extern.TermToRelatedTermsFuzzy
	Cfg   Config
}

// NewResolver builds a Resolver. Either of alias/fuzzy may be nil, in
// which case that pass is simply skipped.
func NewResolver(alias extern.TermsToRelatedTerms, fuzzy extern.TermToRelatedTermsFuzzy) *Resolver {
	return &Resolver{Alias: alias, Fuzzy: fuzzy, Cfg: DefaultConfig}
}

// Resolve fills in st.RelatedTerms from the alias and fuzzy passes, unless
// st opts out via SkipRelatedTermResolution. Related terms that duplicate
// the primary term's own text (by prepared comparison) are dropped.
func (r *Resolver) Resolve(ctx context.Context, st *term.SearchTerm) error {
	if st.SkipRelatedTermResolution() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("related: %w", queryerr.ErrCancelled)
	}

	set := term.NewTermSet()
	for _, existing := range st.RelatedTerms {
		set.AddOrUnion(existing)
	}

	if r.Alias != nil {
		aliases, err := r.Alias.LookupRelatedTerms(ctx, st.Term.Text)
		if err != nil {
			return fmt.Errorf("related: alias lookup for %q: %w", st.Term.Text, queryerr.ErrUpstreamFailure)
		}
		for _, a := range aliases {
			set.AddOrUnion(a)
		}
	}

	if r.Fuzzy != nil {
		fuzzy, err := r.Fuzzy.LookupFuzzy(ctx, st.Term.Text, r.Cfg.MaxFuzzyMatches, r.Cfg.MinFuzzyScore)
		if err != nil {
			return fmt.Errorf("related: fuzzy lookup for %q: %w", st.Term.Text, queryerr.ErrUpstreamFailure)
		}
		for _, f := range fuzzy {
			set.AddOrUnion(f)
		}
	}

	primary := term.Prepare(st.Term.Text)
	resolved := set.Terms()
	out := make([]term.Term, 0, len(resolved))
	for _, t := range resolved {
		if term.Prepare(t.Text) == primary {
			continue
		}
		out = append(out, t)
	}
	st.RelatedTerms = out
	return nil
}

// ResolveGroup resolves related terms for every search term reachable from
// g, stopping at the first fatal error.
func (r *Resolver) ResolveGroup(ctx context.Context, g *term.SearchTermGroup) error {
	var firstErr error
	g.Walk(func(st *term.SearchTerm) {
		if firstErr != nil {
			return
		}
		if err := r.Resolve(ctx, st); err != nil {
			firstErr = err
		}
	})
	return firstErr
}
