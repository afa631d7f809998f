package related

import (
	"context"
	"errors"
	"testing"

	"github.com/sgx-labs/convsearch/internal/term"
)

type fakeAlias struct {
	terms map[string][]term.Term
	err   error
}

func (f *fakeAlias) LookupRelatedTerms(ctx context.Context, termText string) ([]term.Term, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.terms[term.Prepare(termText)], nil
}

type fakeFuzzy struct {
	terms []term.Term
	err   error
}

func (f *fakeFuzzy) LookupFuzzy(ctx context.Context, termText string, maxMatches int, minScore float64) ([]term.Term, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.terms, nil
}

func TestResolveMergesAliasAndFuzzyDedupingByPreparedText(t *testing.T) {
	alias := &fakeAlias{terms: map[string][]term.Term{
		"claude": {term.NewWeightedTerm("anthropic assistant", 1.0)},
	}}
	fuzzy := &fakeFuzzy{terms: []term.Term{
		term.NewWeightedTerm("Anthropic Assistant", 3.0), // same text, higher weight
		term.NewWeightedTerm("chatbot", 0.5),
	}}
	r := NewResolver(alias, fuzzy)
	st := term.NewSearchTerm("claude")
	if err := r.Resolve(context.Background(), &st); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(st.RelatedTerms) != 2 {
		t.Fatalf("expected 2 deduped related terms, got %d: %+v", len(st.RelatedTerms), st.RelatedTerms)
	}
	for _, rt := range st.RelatedTerms {
		if term.Prepare(rt.Text) == "anthropic assistant" && rt.WeightOrDefault(nil) != 3.0 {
			t.Errorf("expected deduped term to keep max weight 3.0, got %v", rt.WeightOrDefault(nil))
		}
	}
}

func TestResolveDropsPrimaryTermFromRelated(t *testing.T) {
	alias := &fakeAlias{terms: map[string][]term.Term{
		"claude": {term.NewTerm("Claude")},
	}}
	r := NewResolver(alias, nil)
	st := term.NewSearchTerm("claude")
	if err := r.Resolve(context.Background(), &st); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(st.RelatedTerms) != 0 {
		t.Errorf("expected primary term's own alias to be dropped, got %+v", st.RelatedTerms)
	}
}

func TestResolveSkipsWildcardAndExactMatchOnly(t *testing.T) {
	alias := &fakeAlias{terms: map[string][]term.Term{"x": {term.NewTerm("y")}}}
	wild := term.SearchTerm{Term: term.NewTerm("x"), Wildcard: true}
	r := NewResolver(alias, nil)
	if err := r.Resolve(context.Background(), &wild); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(wild.RelatedTerms) != 0 {
		t.Error("expected wildcard search term to skip related-term resolution")
	}
	exact := term.SearchTerm{Term: term.NewTerm("x"), ExactMatchOnly: true}
	if err := r.Resolve(context.Background(), &exact); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(exact.RelatedTerms) != 0 {
		t.Error("expected exact-match-only search term to skip related-term resolution")
	}
}

func TestResolvePropagatesUpstreamFailure(t *testing.T) {
	alias := &fakeAlias{err: errors.New("boom")}
	r := NewResolver(alias, nil)
	st := term.NewSearchTerm("x")
	if err := r.Resolve(context.Background(), &st); err == nil {
		t.Fatal("expected an error when the alias index fails")
	}
}

func TestResolveGroupWalksNestedGroups(t *testing.T) {
	alias := &fakeAlias{terms: map[string][]term.Term{
		"alpha": {term.NewTerm("a-alias")},
		"beta":  {term.NewTerm("b-alias")},
	}}
	r := NewResolver(alias, nil)
	a := term.NewSearchTerm("alpha")
	b := term.NewSearchTerm("beta")
	g := &term.SearchTermGroup{
		BooleanOp: term.Or,
		Terms: []term.GroupTerm{
			{SearchTerm: &a},
			{Group: &term.SearchTermGroup{BooleanOp: term.And, Terms: []term.GroupTerm{{SearchTerm: &b}}}},
		},
	}
	if err := r.ResolveGroup(context.Background(), g); err != nil {
		t.Fatalf("ResolveGroup returned error: %v", err)
	}
	if len(a.RelatedTerms) != 1 || len(b.RelatedTerms) != 1 {
		t.Errorf("expected both nested search terms resolved, got a=%+v b=%+v", a.RelatedTerms, b.RelatedTerms)
	}
}
