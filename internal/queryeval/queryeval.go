// Package queryeval runs a compiled query operator tree to completion: it
// evaluates the tree against an EvalContext, groups the surviving
// semantic-ref matches by knowledge type, trims each group to its top-N,
// projects the result down to the messages that contain it, and trims the
// final message list to a char budget. Evaluation is cooperative: every
// operator checks the calling context for cancellation before doing work,
// so a long-running query can be aborted between (not just before) steps.
package queryeval

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryerr"
	"github.com/sgx-labs/convsearch/internal/queryop"
	"github.com/sgx-labs/convsearch/internal/rank"
)

// Options controls the final projection/selection stage of evaluation.
type Options struct {
	// MaxSemanticRefsPerGroup trims each knowledge-type group before
	// projecting to messages. 0 or negative means no limit.
	MaxSemanticRefsPerGroup int
	// MinHitCount drops any semantic-ref match whose hit count falls below
	// this floor before grouping.
	MinHitCount int
	// IntersectKnowledgeTypes requires a message to be reached from every
	// non-empty knowledge-type group to survive projection.
	IntersectKnowledgeTypes bool
	// MaxChars trims the final message list to the largest prefix whose
	// concatenated text fits this many characters. 0 or negative means no
	// limit (Messages is a byte collection, required to apply the trim).
	MaxChars int
	// Messages is consulted only when MaxChars > 0.
	Messages extern.MessageCollection
	// MaxSimilarityMessages caps the projected message candidate set by
	// semantic similarity to QueryText before the char-budget trim. 0 or
	// negative, or a nil TextIndex, skips the similarity rank entirely.
	MaxSimilarityMessages int
	// TextIndex backs the similarity rank. Nil skips it (e.g. no embedding
	// provider configured, or the caller only wants lexical matching).
	TextIndex extern.MessageTextIndex
	// QueryText is the original free-text query, needed by TextIndex's
	// similarity lookup.
	QueryText string
}

// SemanticRefSearchResult is the public per-knowledge-type result: the set
// of search terms that contributed a match, plus the scored semantic refs
// they matched.
type SemanticRefSearchResult struct {
	TermMatches        []string
	SemanticRefMatches []accum.ScoredSemanticRefOrdinal
}

// Result is the fully evaluated, scored, and grouped output of a query.
type Result struct {
	// Groups buckets the surviving semantic-ref matches by knowledge type,
	// each already top-N trimmed and hit-count filtered.
	Groups map[rank.KnowledgeType]SemanticRefSearchResult
	// Messages is every message reached by a surviving semantic-ref match,
	// smoothed and sorted by score descending, ranked by similarity and
	// trimmed to MaxChars if those were set.
	Messages []accum.Match[accum.MessageOrdinal]
}

// Evaluate runs root to completion and produces a Result.
func Evaluate(ctx context.Context, root queryop.SemanticRefNode, ec *queryop.EvalContext, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("queryeval: %w", queryerr.ErrCancelled)
	}
	acc, err := root.Eval(ctx, ec)
	if err != nil {
		return nil, err
	}

	groups, err := queryop.GroupByKnowledgeType(ctx, ec, acc)
	if err != nil {
		return nil, err
	}
	queryop.SelectTopNKnowledgeGroup(groups, opts.MaxSemanticRefsPerGroup, opts.MinHitCount)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("queryeval: %w", queryerr.ErrCancelled)
	}

	messages, err := queryop.MessagesFromKnowledge(ctx, ec, groups, opts.IntersectKnowledgeTypes)
	if err != nil {
		return nil, err
	}

	messages, err = queryop.RankMessagesBySimilarity(ctx, opts.TextIndex, opts.QueryText, opts.MaxSimilarityMessages, messages)
	if err != nil {
		return nil, err
	}

	msgMatches, err := queryop.SelectMessagesInCharBudget(ctx, opts.Messages, messages, opts.MaxChars)
	if err != nil {
		return nil, err
	}

	groupOut := make(map[rank.KnowledgeType]SemanticRefSearchResult, len(groups))
	for k, g := range groups {
		// SelectTopNKnowledgeGroup above already folded related scores via
		// CalculateTotalScore; ToScoredOrdinals would fold them a second
		// time (CalculateTotalScore isn't idempotent), so sort the
		// already-scored accumulator directly instead.
		sorted := g.GetSortedByScore(0)
		refs := make([]accum.ScoredSemanticRefOrdinal, len(sorted))
		for i, m := range sorted {
			refs[i] = accum.ScoredSemanticRefOrdinal{Ordinal: m.Value, Score: m.Score}
		}
		groupOut[k] = SemanticRefSearchResult{
			TermMatches:        g.SearchTermMatches(),
			SemanticRefMatches: refs,
		}
	}

	return &Result{
		Groups:   groupOut,
		Messages: msgMatches,
	}, nil
}
