package compiler

import (
	"context"
	"testing"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryeval"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/related"
	"github.com/sgx-labs/convsearch/internal/scope"
	"github.com/sgx-labs/convsearch/internal/term"
)

type fakeTermIndex struct {
	hits map[string][]extern.ScoredSemanticRefOrdinal
}

func (f *fakeTermIndex) LookupTerm(ctx context.Context, termText string) ([]extern.ScoredSemanticRefOrdinal, error) {
	return f.hits[term.Prepare(termText)], nil
}

type fakeSemanticRefs struct {
	refs map[accum.SemanticRefOrdinal]extern.SemanticRef
}

func (f *fakeSemanticRefs) GetSemanticRef(ctx context.Context, ordinal accum.SemanticRefOrdinal) (extern.SemanticRef, error) {
	return f.refs[ordinal], nil
}

func (f *fakeSemanticRefs) Count(ctx context.Context) (int, error) {
	return len(f.refs), nil
}

type fakeTimestamps struct {
	ranges []scope.TextRange
}

func (f *fakeTimestamps) LookupRange(ctx context.Context, start, end time.Time) ([]scope.TextRange, error) {
	return f.ranges, nil
}

type fakeAlias struct {
	related map[string][]term.Term
}

func (f *fakeAlias) LookupRelatedTerms(ctx context.Context, termText string) ([]term.Term, error) {
	return f.related[term.Prepare(termText)], nil
}

func loc(msg uint64) scope.TextLocation {
	return scope.TextLocation{MessageOrdinal: msg}
}

func TestCompileAndEvaluatesANDGroup(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"alpha": {{Ordinal: 1, Weight: 1}, {Ordinal: 2, Weight: 1}},
		"beta":  {{Ordinal: 2, Weight: 1}, {Ordinal: 3, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1}, 2: {Ordinal: 2}, 3: {Ordinal: 3},
	}}
	c := New(idx, nil, refs, nil, nil)

	group := &term.SearchTermGroup{
		BooleanOp: term.And,
		Terms: []term.GroupTerm{
			{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))},
			{SearchTerm: ptrSearchTerm(term.NewSearchTerm("beta"))},
		},
	}

	root, ec, err := c.Compile(context.Background(), group, nil, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	acc, err := root.Eval(context.Background(), ec)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if acc.Len() != 1 {
		t.Fatalf("expected only the shared ordinal to survive AND, got %d", acc.Len())
	}
	if _, ok := acc.Get(2); !ok {
		t.Error("expected ordinal 2 to survive")
	}
}

func TestCompileResolvesRelatedTermsBeforeBuildingTree(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"novel": {{Ordinal: 17, Weight: 0.8}},
		"book":  {{Ordinal: 22, Weight: 0.6}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		17: {Ordinal: 17}, 22: {Ordinal: 22},
	}}
	alias := &fakeAlias{related: map[string][]term.Term{"novel": {term.NewTerm("book")}}}
	resolver := related.NewResolver(alias, nil)
	c := New(idx, nil, refs, nil, resolver)

	group := &term.SearchTermGroup{
		BooleanOp: term.Or,
		Terms:     []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("novel"))}},
	}

	root, ec, err := c.Compile(context.Background(), group, nil, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	acc, err := root.Eval(context.Background(), ec)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if acc.Len() != 2 {
		t.Fatalf("expected the related term \"book\" to expand the match set to 2, got %d", acc.Len())
	}
}

func TestCompileKnowledgeTypeRestrictionFiltersLeaves(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"alpha": {{Ordinal: 1, Weight: 1}, {Ordinal: 2, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, KnowledgeType: rank.KnowledgeEntity},
		2: {Ordinal: 2, KnowledgeType: rank.KnowledgeTopic},
	}}
	c := New(idx, nil, refs, nil, nil)

	group := &term.SearchTermGroup{
		BooleanOp: term.Or,
		Terms:     []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}},
	}
	when := &WhenFilter{KnowledgeTypes: []rank.KnowledgeType{rank.KnowledgeEntity}}

	root, ec, err := c.Compile(context.Background(), group, when, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	acc, err := root.Eval(context.Background(), ec)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if acc.Len() != 1 {
		t.Fatalf("expected only the entity-typed ordinal to survive, got %d", acc.Len())
	}
	if _, ok := acc.Get(1); !ok {
		t.Error("expected ordinal 1 (entity) to survive the restriction")
	}
}

func TestCompileDateRangeScopeRejectsOutOfRangeHits(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"alpha": {{Ordinal: 1, Weight: 1}, {Ordinal: 2, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, Location: loc(5)},
		2: {Ordinal: 2, Location: loc(15)},
	}}
	start := loc(10)
	end := loc(20)
	ts := &fakeTimestamps{ranges: []scope.TextRange{{Start: start, End: &end}}}
	c := New(idx, nil, refs, ts, nil)

	group := &term.SearchTermGroup{
		BooleanOp: term.Or,
		Terms:     []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}},
	}
	when := &WhenFilter{DateRanges: []DateRange{{Start: time.Now(), End: time.Now().Add(time.Hour)}}}

	root, ec, err := c.Compile(context.Background(), group, when, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	acc, err := root.Eval(context.Background(), ec)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if acc.Len() != 1 {
		t.Fatalf("expected only the in-range ordinal to survive, got %d", acc.Len())
	}
	if _, ok := acc.Get(2); !ok {
		t.Error("expected ordinal 2 (message 15, in range) to survive")
	}
}

func TestCompileInvertedDateRangeIsInvalidArgument(t *testing.T) {
	c := New(&fakeTermIndex{}, nil, &fakeSemanticRefs{}, &fakeTimestamps{}, nil)
	group := &term.SearchTermGroup{Terms: []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}}}
	when := &WhenFilter{DateRanges: []DateRange{{Start: time.Now(), End: time.Now().Add(-time.Hour)}}}
	if _, _, err := c.Compile(context.Background(), group, when, DefaultSearchOptions()); err == nil {
		t.Fatal("expected an error for an inverted date range")
	}
}

func TestCompileFacetWildcardNameIsInvalidArgument(t *testing.T) {
	c := New(&fakeTermIndex{}, nil, &fakeSemanticRefs{}, nil, nil)
	facetName := term.SearchTerm{Term: term.NewTerm("*"), Wildcard: true}
	group := &term.SearchTermGroup{Terms: []term.GroupTerm{{
		PropertySearchTerm: &term.PropertySearchTerm{
			FacetName:     &facetName,
			PropertyValue: term.NewSearchTerm("value"),
		},
	}}}
	if _, _, err := c.Compile(context.Background(), group, nil, DefaultSearchOptions()); err == nil {
		t.Fatal("expected an error for a wildcard facet name")
	}
}

func TestCompileUnsupportedBooleanOperatorIsNotSupported(t *testing.T) {
	c := New(&fakeTermIndex{}, nil, &fakeSemanticRefs{}, nil, nil)
	group := &term.SearchTermGroup{
		BooleanOp: term.BooleanOp(99),
		Terms:     []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}},
	}
	if _, _, err := c.Compile(context.Background(), group, nil, DefaultSearchOptions()); err == nil {
		t.Fatal("expected an error for an unsupported boolean operator")
	}
}

func TestCompileNilGroupIsInvalidArgument(t *testing.T) {
	c := New(&fakeTermIndex{}, nil, &fakeSemanticRefs{}, nil, nil)
	if _, _, err := c.Compile(context.Background(), nil, nil, DefaultSearchOptions()); err == nil {
		t.Fatal("expected an error for a nil search term group")
	}
}

func TestCompileCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&fakeTermIndex{}, nil, &fakeSemanticRefs{}, nil, nil)
	group := &term.SearchTermGroup{Terms: []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}}}
	if _, _, err := c.Compile(ctx, group, nil, DefaultSearchOptions()); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}

func TestCompileThenFullEvaluatePipeline(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"alpha": {{Ordinal: 1, Weight: 10}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, KnowledgeType: rank.KnowledgeEntity, Location: loc(1)},
	}}
	c := New(idx, nil, refs, nil, nil)
	group := &term.SearchTermGroup{
		BooleanOp: term.Or,
		Terms:     []term.GroupTerm{{SearchTerm: ptrSearchTerm(term.NewSearchTerm("alpha"))}},
	}
	root, ec, err := c.Compile(context.Background(), group, nil, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	result, err := queryeval.Evaluate(context.Background(), root, ec, queryeval.Options{})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected the compiled query to project to 1 message end-to-end, got %d", len(result.Messages))
	}
}

func ptrSearchTerm(st term.SearchTerm) *term.SearchTerm {
	return &st
}
