// Package queryop defines the query operator tree the compiler lowers a
// SearchTermGroup into: term and property lookup leaves, the AND/OR/OR_MAX
// boolean combinators, a scope operator, and the grouping/selection
// operators that project a result down to knowledge-type groups or
// messages.
package queryop

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryerr"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/scope"
	"github.com/sgx-labs/convsearch/internal/term"
)

// SemanticRefNode is one operator in the query tree, producing a
// SemanticRefAccumulator when evaluated against an EvalContext. A leaf may
// return an empty (but non-nil) accumulator to mean "no contribution" —
// the engine treats nil and empty identically.
type SemanticRefNode interface {
	Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error)
}

// EvalContext carries the external indices an evaluation needs, plus the
// per-query mutable state described in spec-facing DESIGN NOTES:
// matchedTerms (terms already looked up, so a boolean's children don't
// double-count a shared related term) and the currently attached scope.
// MatchedTerms is reset at the entry to every boolean combinator so each
// top-level boolean evaluates its terms fresh, per the hit-count
// semantics the AND gate depends on.
type EvalContext struct {
	TermIndex     extern.TermToSemanticRefIndex
	PropertyIndex extern.PropertyToSemanticRefIndex
	SemanticRefs  extern.SemanticRefCollection
	Scope         *scope.TextRangesInScope
	EntityWeight  *float64

	MatchedTerms map[string]bool
}

// NewEvalContext builds an EvalContext with an initialized MatchedTerms set.
func NewEvalContext() *EvalContext {
	return &EvalContext{MatchedTerms: make(map[string]bool)}
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queryop: %w", queryerr.ErrCancelled)
	}
	return nil
}

// resolveAndFilter resolves ordinals to semantic refs (for scope checking
// and entity boosting) and drops any ordinal whose location is out of
// scope. Missing semantic refs are a fatal data-corruption error.
func resolveAndFilter(ctx context.Context, ec *EvalContext, hits []extern.ScoredSemanticRefOrdinal) ([]accum.ScoredOrdinal[accum.SemanticRefOrdinal], error) {
	out := make([]accum.ScoredOrdinal[accum.SemanticRefOrdinal], 0, len(hits))
	for _, h := range hits {
		var ref extern.SemanticRef
		var err error
		if ec.SemanticRefs != nil {
			ref, err = ec.SemanticRefs.GetSemanticRef(ctx, h.Ordinal)
			if err != nil {
				return nil, fmt.Errorf("queryop: resolving semantic ref %d: %w", h.Ordinal, queryerr.ErrDataCorruption)
			}
			if ec.Scope != nil && !ec.Scope.IsInScope(ref.Location) {
				continue
			}
		}
		score := rank.BoostEntities(h.Weight, ref.KnowledgeType, ec.EntityWeight)
		out = append(out, accum.ScoredOrdinal[accum.SemanticRefOrdinal]{Ordinal: h.Ordinal, Score: score})
	}
	return out, nil
}

// TermLookup is a leaf that resolves a SearchTerm (and its already-resolved
// RelatedTerms) against a TermToSemanticRefIndex, per spec §4.6.1.
type TermLookup struct {
	SearchTerm term.SearchTerm
}

// Eval implements SemanticRefNode.
func (l TermLookup) Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	out := accum.NewSemanticRefAccumulator()
	if l.SearchTerm.Wildcard {
		return out, nil
	}
	if ec.TermIndex == nil {
		return nil, fmt.Errorf("queryop: term lookup requires a TermIndex: %w", queryerr.ErrInvalidArgument)
	}
	primaryKey := term.Prepare(l.SearchTerm.Term.Text)

	if !ec.MatchedTerms[primaryKey] {
		hits, err := ec.TermIndex.LookupTerm(ctx, l.SearchTerm.Term.Text)
		if err != nil {
			return nil, fmt.Errorf("queryop: term lookup for %q: %w", l.SearchTerm.Term.Text, queryerr.ErrUpstreamFailure)
		}
		scored, err := resolveAndFilter(ctx, ec, hits)
		if err != nil {
			return nil, err
		}
		out.AddTermMatches(l.SearchTerm.Term, scored, true, nil)
		ec.MatchedTerms[primaryKey] = true
	}

	if !l.SearchTerm.SkipRelatedTermResolution() {
		for _, rel := range l.SearchTerm.RelatedTerms {
			relKey := term.Prepare(rel.Text)
			if ec.MatchedTerms[relKey] {
				continue
			}
			hits, err := ec.TermIndex.LookupTerm(ctx, rel.Text)
			if err != nil {
				return nil, fmt.Errorf("queryop: related term lookup for %q: %w", rel.Text, queryerr.ErrUpstreamFailure)
			}
			scored, err := resolveAndFilter(ctx, ec, hits)
			if err != nil {
				return nil, err
			}
			out.AddTermMatchesIfNew(l.SearchTerm.Term, scored, false, rel.Weight)
			ec.MatchedTerms[relKey] = true
		}
	}
	return out, nil
}

// PropertyLookup is a leaf that resolves a PropertySearchTerm against a
// PropertyToSemanticRefIndex, per spec §4.6.2.
type PropertyLookup struct {
	PropertyTerm term.PropertySearchTerm
}

// Eval implements SemanticRefNode.
func (l PropertyLookup) Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	out := accum.NewSemanticRefAccumulator()
	if ec.PropertyIndex == nil {
		return nil, fmt.Errorf("queryop: property lookup requires a PropertyIndex: %w", queryerr.ErrInvalidArgument)
	}

	if !l.PropertyTerm.IsFacet() {
		hits, err := ec.PropertyIndex.LookupProperty(ctx, string(l.PropertyTerm.PropertyName), l.PropertyTerm.PropertyValue.Term.Text)
		if err != nil {
			return nil, fmt.Errorf("queryop: property lookup for %s=%q: %w", l.PropertyTerm.PropertyName, l.PropertyTerm.PropertyValue.Term.Text, queryerr.ErrUpstreamFailure)
		}
		scored, err := resolveAndFilter(ctx, ec, hits)
		if err != nil {
			return nil, err
		}
		out.AddTermMatches(l.PropertyTerm.PropertyValue.Term, scored, true, nil)
		return out, nil
	}

	// Facet variant: union a lookup on the facet's own name with a lookup
	// on its value, skipping the value lookup entirely if it's wildcard.
	nameHits, err := ec.PropertyIndex.LookupProperty(ctx, "facetName", l.PropertyTerm.FacetName.Term.Text)
	if err != nil {
		return nil, fmt.Errorf("queryop: facet name lookup for %q: %w", l.PropertyTerm.FacetName.Term.Text, queryerr.ErrUpstreamFailure)
	}
	nameScored, err := resolveAndFilter(ctx, ec, nameHits)
	if err != nil {
		return nil, err
	}
	out.AddTermMatches(l.PropertyTerm.FacetName.Term, nameScored, true, nil)

	if !l.PropertyTerm.PropertyValue.Wildcard {
		valueHits, err := ec.PropertyIndex.LookupProperty(ctx, "facetValue", l.PropertyTerm.PropertyValue.Term.Text)
		if err != nil {
			return nil, fmt.Errorf("queryop: facet value lookup for %q: %w", l.PropertyTerm.PropertyValue.Term.Text, queryerr.ErrUpstreamFailure)
		}
		valueScored, err := resolveAndFilter(ctx, ec, valueHits)
		if err != nil {
			return nil, err
		}
		out.AddTermMatches(l.PropertyTerm.PropertyValue.Term, valueScored, true, nil)
	}
	return out, nil
}

// And requires every child to contribute; children are intersected
// sequentially and the result is hit-count gated at len(children). Any
// child returning an empty accumulator makes the whole AND empty.
type And struct {
	Children []SemanticRefNode
}

// Eval implements SemanticRefNode.
func (a And) Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	ec.MatchedTerms = make(map[string]bool)
	if len(a.Children) == 0 {
		return accum.NewSemanticRefAccumulator(), nil
	}
	acc, err := a.Children[0].Eval(ctx, ec)
	if err != nil {
		return nil, err
	}
	if acc.Len() == 0 {
		return accum.NewSemanticRefAccumulator(), nil
	}
	for _, child := range a.Children[1:] {
		childAcc, err := child.Eval(ctx, ec)
		if err != nil {
			return nil, err
		}
		if childAcc.Len() == 0 {
			return accum.NewSemanticRefAccumulator(), nil
		}
		acc = acc.Intersect(childAcc)
		if acc.Len() == 0 {
			return accum.NewSemanticRefAccumulator(), nil
		}
	}
	acc.CalculateTotalScore(nil)
	acc.SelectWithHitCount(len(a.Children))
	return acc, nil
}

// Or unions every child's contribution, then folds related scores.
type Or struct {
	Children []SemanticRefNode
}

// Eval implements SemanticRefNode.
func (o Or) Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	ec.MatchedTerms = make(map[string]bool)
	acc := accum.NewSemanticRefAccumulator()
	for _, child := range o.Children {
		childAcc, err := child.Eval(ctx, ec)
		if err != nil {
			return nil, err
		}
		acc = acc.Union(childAcc)
	}
	acc.CalculateTotalScore(nil)
	return acc, nil
}

// OrMax behaves like Or but keeps only the matches touched by the maximal
// number of children.
type OrMax struct {
	Children []SemanticRefNode
}

// Eval implements SemanticRefNode.
func (o OrMax) Eval(ctx context.Context, ec *EvalContext) (*accum.SemanticRefAccumulator, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	ec.MatchedTerms = make(map[string]bool)
	acc := accum.NewSemanticRefAccumulator()
	for _, child := range o.Children {
		childAcc, err := child.Eval(ctx, ec)
		if err != nil {
			return nil, err
		}
		acc = acc.Union(childAcc)
	}
	acc.CalculateTotalScore(nil)
	if k := acc.GetMaxHitCount(); k > 1 {
		acc.SelectWithHitCount(k)
	}
	return acc, nil
}

// SelectTopNKnowledgeGroup applies selectTopNScoring to each knowledge-type
// bucket of an already-grouped result.
func SelectTopNKnowledgeGroup(groups map[rank.KnowledgeType]*accum.SemanticRefAccumulator, maxMatches, minHits int) {
	for _, g := range groups {
		g.SelectTopNScoring(maxMatches, minHits)
	}
}

// GroupByKnowledgeType buckets acc's matches by the semantic ref's
// knowledge type, fetching each ref once (cached per call). Every bucket
// inherits acc's SearchTermMatches.
func GroupByKnowledgeType(ctx context.Context, ec *EvalContext, acc *accum.SemanticRefAccumulator) (map[rank.KnowledgeType]*accum.SemanticRefAccumulator, error) {
	if ec.SemanticRefs == nil {
		return nil, fmt.Errorf("queryop: grouping requires a SemanticRefCollection: %w", queryerr.ErrInvalidArgument)
	}
	groups := make(map[rank.KnowledgeType]*accum.SemanticRefAccumulator)
	terms := acc.SearchTermMatches()
	for _, m := range acc.Values() {
		ref, err := ec.SemanticRefs.GetSemanticRef(ctx, m.Value)
		if err != nil {
			return nil, fmt.Errorf("queryop: resolving semantic ref %d: %w", m.Value, queryerr.ErrDataCorruption)
		}
		g, ok := groups[ref.KnowledgeType]
		if !ok {
			g = accum.NewSemanticRefAccumulator()
			for _, t := range terms {
				g.AddTermMatches(term.NewTerm(t), nil, true, nil)
			}
			groups[ref.KnowledgeType] = g
		}
		g.AddMatch(m)
	}
	return groups, nil
}

// messagesFromSemanticRefOrdinals projects each surviving semantic-ref
// match onto the message ordinal(s) its location spans.
func messagesFromSemanticRefOrdinals(ctx context.Context, ec *EvalContext, acc *accum.SemanticRefAccumulator) (*accum.MessageAccumulator, error) {
	out := accum.NewMessageAccumulator()
	for _, m := range acc.Values() {
		ref, err := ec.SemanticRefs.GetSemanticRef(ctx, m.Value)
		if err != nil {
			return nil, fmt.Errorf("queryop: resolving semantic ref %d: %w", m.Value, queryerr.ErrDataCorruption)
		}
		out.AddFromSemanticRef([]accum.MessageOrdinal{accum.MessageOrdinal(ref.Location.MessageOrdinal)}, m.Score)
	}
	return out, nil
}

// MessagesFromKnowledge projects every knowledge-type group's matches onto
// messages. When intersectKnowledgeTypes is true, a message only survives
// if it was reached from every non-empty group (hitCount ==
// numKnowledgeTypesHit). Finally smooths the result's scores.
func MessagesFromKnowledge(ctx context.Context, ec *EvalContext, groups map[rank.KnowledgeType]*accum.SemanticRefAccumulator, intersectKnowledgeTypes bool) (*accum.MessageAccumulator, error) {
	nonEmpty := 0
	out := accum.NewMessageAccumulator()
	for _, g := range groups {
		if g.Len() == 0 {
			continue
		}
		nonEmpty++
		projected, err := messagesFromSemanticRefOrdinals(ctx, ec, g)
		if err != nil {
			return nil, err
		}
		out = &accum.MessageAccumulator{MatchAccumulator: out.MatchAccumulator.Union(projected.MatchAccumulator)}
	}
	if intersectKnowledgeTypes && nonEmpty > 0 {
		out.SelectWithHitCount(nonEmpty)
	}
	out.SmoothScores()
	return out, nil
}

// SelectMessagesInCharBudget sorts ordinals by descending score and trims
// to the prefix that fits within maxChars, per
// extern.MessageCollection.GetCountInCharBudget.
func SelectMessagesInCharBudget(ctx context.Context, messages extern.MessageCollection, acc *accum.MessageAccumulator, maxChars int) ([]accum.Match[accum.MessageOrdinal], error) {
	sorted := acc.GetSortedByScore(0)
	if messages == nil || maxChars <= 0 {
		return sorted, nil
	}
	ordinals := make([]accum.MessageOrdinal, len(sorted))
	for i, m := range sorted {
		ordinals[i] = m.Value
	}
	n, err := messages.GetCountInCharBudget(ctx, ordinals, maxChars)
	if err != nil {
		return nil, fmt.Errorf("queryop: char budget trim: %w", queryerr.ErrUpstreamFailure)
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// RankMessagesBySimilarity restricts msgs to at most max entries when it
// holds more candidates than that: it asks textIndex for the most
// semantically similar ordinals within msgs' own candidate set and replaces
// msgs' matches with the returned scored ordinals. A nil textIndex, a
// non-positive max, or a candidate count already within budget passes msgs
// through unchanged.
func RankMessagesBySimilarity(ctx context.Context, textIndex extern.MessageTextIndex, queryText string, max int, msgs *accum.MessageAccumulator) (*accum.MessageAccumulator, error) {
	if textIndex == nil || max <= 0 || msgs.Len() <= max {
		return msgs, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	ordinals := make([]accum.MessageOrdinal, 0, msgs.Len())
	for _, m := range msgs.Values() {
		ordinals = append(ordinals, m.Value)
	}
	scored, err := textIndex.FindSimilarInSubset(ctx, queryText, ordinals, max)
	if err != nil {
		return nil, fmt.Errorf("queryop: similarity rank: %w", queryerr.ErrUpstreamFailure)
	}

	out := accum.NewMessageAccumulator()
	for _, s := range scored {
		out.AddFromSemanticRef([]accum.MessageOrdinal{s.Ordinal}, s.Score)
	}
	return out, nil
}
