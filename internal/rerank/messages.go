package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
)

// rankedMatch pairs a scored message match with its computed text overlap
// against the query.
type rankedMatch struct {
	match   accum.Match[accum.MessageOrdinal]
	overlap float64
}

// Messages re-sorts matches by a three-tier ranking: high lexical overlap
// with the query text, then meaningful overlap, then everything else,
// breaking ties within each tier by the match's own accumulated score.
// This prevents a message that merely contains the query terms by chance
// (low hit score but incidental phrase overlap) from outranking a message
// that directly restates the query.
func Messages(ctx context.Context, messages extern.MessageCollection, matches []accum.Match[accum.MessageOrdinal], queryTerms []string) ([]accum.Match[accum.MessageOrdinal], error) {
	if len(matches) == 0 || len(queryTerms) == 0 {
		return matches, nil
	}

	items := make([]rankedMatch, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		msg, err := messages.GetMessage(ctx, m.Value)
		if err != nil {
			return nil, fmt.Errorf("rerank: fetch message %d: %w", m.Value, err)
		}
		items = append(items, rankedMatch{match: m, overlap: TextOverlapScore(queryTerms, msg.Text)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		aHigh := a.overlap >= HighTierOverlap
		bHigh := b.overlap >= HighTierOverlap
		if aHigh != bHigh {
			return aHigh
		}
		if aHigh && bHigh && a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		aMed := a.overlap >= MinTitleOverlap
		bMed := b.overlap >= MinTitleOverlap
		if aMed != bMed {
			return aMed
		}
		return a.match.Score > b.match.Score
	})

	out := make([]accum.Match[accum.MessageOrdinal], len(items))
	for i, item := range items {
		out[i] = item.match
	}
	return out, nil
}
