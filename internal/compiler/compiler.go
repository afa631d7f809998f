// Package compiler lowers a SearchTermGroup plus an optional WhenFilter and
// SearchOptions into a queryop.SemanticRefNode tree and a ready EvalContext,
// per spec.md §4.7: resolve related terms, compile the WhenFilter's scope
// restrictions onto the EvalContext, then mutually recurse the boolean tree
// into operator nodes, wrapping term/property leaves in a knowledge-type
// predicate filter when the WhenFilter restricts knowledge type.
package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryerr"
	"github.com/sgx-labs/convsearch/internal/queryop"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/related"
	"github.com/sgx-labs/convsearch/internal/scope"
	"github.com/sgx-labs/convsearch/internal/term"
)

// DateRange is a [Start, End) wall-clock window used to restrict a query to
// messages timestamped within it.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// WhenFilter is the external, optional scope input to a query: date ranges
// and tagged text ranges restrict evaluation to a subset of the
// conversation (intersected with each other, unioned within each), while a
// knowledge-type restriction is not a scope at all but a per-leaf predicate
// on the kind of semantic ref a match may resolve to.
type WhenFilter struct {
	DateRanges     []DateRange
	TextRanges     []scope.TextRange
	KnowledgeTypes []rank.KnowledgeType
}

// restrictsKnowledgeType reports whether w (possibly nil) names a
// non-empty set of allowed knowledge types.
func (w *WhenFilter) restrictsKnowledgeType() bool {
	return w != nil && len(w.KnowledgeTypes) > 0
}

// SearchOptions tunes the related-term resolution pass and the final
// grouping/selection stage a caller applies after evaluation.
type SearchOptions struct {
	// MaxFuzzyMatches and MinFuzzyScore bound the fuzzy related-term pass.
	// Zero values leave related.DefaultConfig in effect.
	MaxFuzzyMatches int
	MinFuzzyScore   float64
	// EntityWeight overrides rank.DefaultEntityWeight/rank.DefaultWeight
	// when non-nil, per spec.md §4.7's entityBooster.
	EntityWeight *float64
}

// DefaultSearchOptions mirrors related.DefaultConfig for the fuzzy pass and
// leaves EntityWeight unset (so the compiled query uses the spec's default
// entity/default weight ratio).
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxFuzzyMatches: related.DefaultConfig.MaxFuzzyMatches,
		MinFuzzyScore:   related.DefaultConfig.MinFuzzyScore,
	}
}

// Compiler holds the external dependencies a compiled query needs at
// evaluation time.
type Compiler struct {
	TermIndex     extern.TermToSemanticRefIndex
	PropertyIndex extern.PropertyToSemanticRefIndex
	SemanticRefs  extern.SemanticRefCollection
	Timestamps    extern.TimestampToTextRangeIndex
	Related       *related.Resolver
}

// New builds a Compiler from its external dependencies. related may be nil
// to skip related-term resolution entirely (every SearchTerm is matched
// exactly, as if marked exact-match-only).
func New(termIndex extern.TermToSemanticRefIndex, propertyIndex extern.PropertyToSemanticRefIndex, semanticRefs extern.SemanticRefCollection, timestamps extern.TimestampToTextRangeIndex, relatedResolver *related.Resolver) *Compiler {
	return &Compiler{
		TermIndex:     termIndex,
		PropertyIndex: propertyIndex,
		SemanticRefs:  semanticRefs,
		Timestamps:    timestamps,
		Related:       relatedResolver,
	}
}

// Compile lowers group (plus optional when/opts) into a queryop.SemanticRefNode
// tree and the EvalContext it must be evaluated against.
func (c *Compiler) Compile(ctx context.Context, group *term.SearchTermGroup, when *WhenFilter, opts SearchOptions) (queryop.SemanticRefNode, *queryop.EvalContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("compiler: %w", queryerr.ErrCancelled)
	}
	if group == nil {
		return nil, nil, fmt.Errorf("compiler: search term group is required: %w", queryerr.ErrInvalidArgument)
	}

	if c.Related != nil {
		if opts.MaxFuzzyMatches > 0 {
			c.Related.Cfg.MaxFuzzyMatches = opts.MaxFuzzyMatches
		}
		if opts.MinFuzzyScore > 0 {
			c.Related.Cfg.MinFuzzyScore = opts.MinFuzzyScore
		}
		if err := c.Related.ResolveGroup(ctx, group); err != nil {
			return nil, nil, err
		}
	}

	sel, err := c.compileScope(ctx, when)
	if err != nil {
		return nil, nil, err
	}

	ec := queryop.NewEvalContext()
	ec.TermIndex = c.TermIndex
	ec.PropertyIndex = c.PropertyIndex
	ec.SemanticRefs = c.SemanticRefs
	ec.Scope = sel
	ec.EntityWeight = opts.EntityWeight

	root, err := c.compileGroup(group, when)
	if err != nil {
		return nil, nil, err
	}
	return root, ec, nil
}

// compileScope builds the TextRangesInScope the EvalContext carries for the
// whole evaluation: one selector for date ranges (resolved through the
// timestamp index), one for static tagged text ranges. Unlike the source
// design's per-boolean GetScopeExpr, this engine attaches scope once on the
// EvalContext — every leaf consults it via resolveAndFilter — so "scope
// applies only at the outermost boolean" falls out for free rather than
// needing to be threaded through compileGroup's recursion.
func (c *Compiler) compileScope(ctx context.Context, when *WhenFilter) (*scope.TextRangesInScope, error) {
	if when == nil {
		return nil, nil
	}
	var selectors []*scope.TextRangeCollection

	if len(when.DateRanges) > 0 {
		if c.Timestamps == nil {
			return nil, fmt.Errorf("compiler: date range filter requires a TimestampToTextRangeIndex: %w", queryerr.ErrInvalidArgument)
		}
		dateSel := scope.NewTextRangeCollection()
		for _, dr := range when.DateRanges {
			if dr.End.Before(dr.Start) {
				return nil, fmt.Errorf("compiler: date range with end before start: %w", queryerr.ErrInvalidArgument)
			}
			ranges, err := c.Timestamps.LookupRange(ctx, dr.Start, dr.End)
			if err != nil {
				return nil, fmt.Errorf("compiler: date range lookup: %w", queryerr.ErrUpstreamFailure)
			}
			for _, r := range ranges {
				dateSel.Add(r)
			}
		}
		selectors = append(selectors, dateSel)
	}

	if len(when.TextRanges) > 0 {
		textSel := scope.NewTextRangeCollection()
		for _, r := range when.TextRanges {
			textSel.Add(r)
		}
		selectors = append(selectors, textSel)
	}

	if len(selectors) == 0 {
		return nil, nil
	}
	return scope.NewTextRangesInScope(selectors...), nil
}

// compileGroup recurses g's boolean tree into And/Or/OrMax operator nodes.
// when is threaded into every recursion level (including nested groups)
// purely for the knowledge-type predicate: that restriction is a per-leaf
// filter on what a match may resolve to, not a scope, so it has no "outermost
// boolean only" restriction the way the text-range scope does.
func (c *Compiler) compileGroup(g *term.SearchTermGroup, when *WhenFilter) (queryop.SemanticRefNode, error) {
	children := make([]queryop.SemanticRefNode, 0, len(g.Terms))
	for _, gt := range g.Terms {
		child, err := c.compileGroupTerm(gt, when)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	switch g.BooleanOp {
	case term.And:
		return queryop.And{Children: children}, nil
	case term.Or:
		return queryop.Or{Children: children}, nil
	case term.OrMax:
		return queryop.OrMax{Children: children}, nil
	default:
		return nil, fmt.Errorf("compiler: unsupported boolean operator %v: %w", g.BooleanOp, queryerr.ErrNotSupported)
	}
}

func (c *Compiler) compileGroupTerm(gt term.GroupTerm, when *WhenFilter) (queryop.SemanticRefNode, error) {
	switch {
	case gt.SearchTerm != nil:
		var node queryop.SemanticRefNode = queryop.TermLookup{SearchTerm: *gt.SearchTerm}
		if when.restrictsKnowledgeType() {
			node = newKnowledgeTypeFilter(node, when.KnowledgeTypes)
		}
		return node, nil

	case gt.PropertySearchTerm != nil:
		pt := *gt.PropertySearchTerm
		if pt.IsFacet() && pt.FacetName != nil && pt.FacetName.Wildcard {
			return nil, fmt.Errorf("compiler: facet name term must not be wildcard: %w", queryerr.ErrInvalidArgument)
		}
		var node queryop.SemanticRefNode = queryop.PropertyLookup{PropertyTerm: pt}
		if when.restrictsKnowledgeType() {
			node = newKnowledgeTypeFilter(node, when.KnowledgeTypes)
		}
		return node, nil

	case gt.Group != nil:
		return c.compileGroup(gt.Group, when)

	default:
		return nil, fmt.Errorf("compiler: empty group term: %w", queryerr.ErrInvalidArgument)
	}
}

// knowledgeTypeFilter wraps a node, keeping only matches whose resolved
// semantic ref carries one of a fixed set of knowledge types.
type knowledgeTypeFilter struct {
	inner   queryop.SemanticRefNode
	allowed map[rank.KnowledgeType]bool
}

func newKnowledgeTypeFilter(inner queryop.SemanticRefNode, types []rank.KnowledgeType) knowledgeTypeFilter {
	allowed := make(map[rank.KnowledgeType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return knowledgeTypeFilter{inner: inner, allowed: allowed}
}

// Eval implements queryop.SemanticRefNode.
func (f knowledgeTypeFilter) Eval(ctx context.Context, ec *queryop.EvalContext) (*accum.SemanticRefAccumulator, error) {
	acc, err := f.inner.Eval(ctx, ec)
	if err != nil {
		return nil, err
	}
	if len(f.allowed) == 0 || acc.Len() == 0 {
		return acc, nil
	}
	if ec.SemanticRefs == nil {
		return nil, fmt.Errorf("compiler: knowledge-type filter requires a SemanticRefCollection: %w", queryerr.ErrInvalidArgument)
	}
	out := accum.NewSemanticRefAccumulator()
	for _, m := range acc.Values() {
		ref, err := ec.SemanticRefs.GetSemanticRef(ctx, m.Value)
		if err != nil {
			return nil, fmt.Errorf("compiler: resolving semantic ref %d: %w", m.Value, queryerr.ErrDataCorruption)
		}
		if !f.allowed[ref.KnowledgeType] {
			continue
		}
		out.AddMatch(m)
	}
	for _, t := range acc.SearchTermMatches() {
		out.AddTermMatches(term.NewTerm(t), nil, true, nil)
	}
	return out, nil
}
