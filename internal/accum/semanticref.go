package accum

import (
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/term"
)

// SemanticRefOrdinal identifies a semantic ref (an extracted entity, topic,
// action, or tag) by its position in the semantic-ref collection.
type SemanticRefOrdinal uint64

// MessageOrdinal identifies a message by its position in the message
// collection.
type MessageOrdinal uint64

// ScoredOrdinal pairs an ordinal with the per-lookup score an index
// assigned it, before accumulation/weighting.
type ScoredOrdinal[T comparable] struct {
	Ordinal T
	Score   float64
}

// SemanticRefAccumulator accumulates candidate semantic refs, additionally
// tracking which search terms contributed to each one.
type SemanticRefAccumulator struct {
	*MatchAccumulator[SemanticRefOrdinal]
	searchTermMatches map[string]bool
}

// NewSemanticRefAccumulator builds an empty SemanticRefAccumulator.
func NewSemanticRefAccumulator() *SemanticRefAccumulator {
	return &SemanticRefAccumulator{
		MatchAccumulator:  NewMatchAccumulator[SemanticRefOrdinal](),
		searchTermMatches: make(map[string]bool),
	}
}

// AddTermMatches folds scoredOrdinals into the accumulator, weighting each
// by t.weight (falling back to weightOverride, then 1.0), as an exact
// contribution when isExactMatch, otherwise as a related contribution.
// Always records t.Text in SearchTermMatches, even if scoredOrdinals is
// empty, so callers can tell the term was evaluated.
func (a *SemanticRefAccumulator) AddTermMatches(t term.Term, scoredOrdinals []ScoredOrdinal[SemanticRefOrdinal], isExactMatch bool, weightOverride *float64) {
	weight := t.WeightOrDefault(weightOverride)
	for _, so := range scoredOrdinals {
		if isExactMatch {
			a.AddExact(so.Ordinal, so.Score*weight)
		} else {
			a.AddRelated(so.Ordinal, so.Score*weight)
		}
	}
	a.searchTermMatches[term.Prepare(t.Text)] = true
}

// AddTermMatchesIfNew behaves like AddTermMatches but skips any ordinal
// already present in the accumulator — used for related-term expansion so
// a related term cannot add to an ordinal the primary term already
// matched.
func (a *SemanticRefAccumulator) AddTermMatchesIfNew(t term.Term, scoredOrdinals []ScoredOrdinal[SemanticRefOrdinal], isExactMatch bool, weightOverride *float64) {
	weight := t.WeightOrDefault(weightOverride)
	for _, so := range scoredOrdinals {
		if _, exists := a.Get(so.Ordinal); exists {
			continue
		}
		if isExactMatch {
			a.AddExact(so.Ordinal, so.Score*weight)
		} else {
			a.AddRelated(so.Ordinal, so.Score*weight)
		}
	}
	a.searchTermMatches[term.Prepare(t.Text)] = true
}

// SearchTermMatches returns the set of prepared term texts that
// contributed to this accumulator.
func (a *SemanticRefAccumulator) SearchTermMatches() []string {
	out := make([]string, 0, len(a.searchTermMatches))
	for t := range a.searchTermMatches {
		out = append(out, t)
	}
	return out
}

// HasSearchTermMatch reports whether termText (by prepared form) has
// already contributed to this accumulator.
func (a *SemanticRefAccumulator) HasSearchTermMatch(termText string) bool {
	return a.searchTermMatches[term.Prepare(termText)]
}

// Union merges other into a new SemanticRefAccumulator: the underlying
// matches combine per MatchAccumulator.Union, and searchTermMatches is the
// union of both sides' term sets.
func (a *SemanticRefAccumulator) Union(other *SemanticRefAccumulator) *SemanticRefAccumulator {
	out := &SemanticRefAccumulator{
		MatchAccumulator:  a.MatchAccumulator.Union(other.MatchAccumulator),
		searchTermMatches: make(map[string]bool),
	}
	for t := range a.searchTermMatches {
		out.searchTermMatches[t] = true
	}
	for t := range other.searchTermMatches {
		out.searchTermMatches[t] = true
	}
	return out
}

// Intersect returns a new SemanticRefAccumulator containing only ordinals
// present in both a and other (per MatchAccumulator.Intersect), with
// searchTermMatches the union of both sides' term sets.
func (a *SemanticRefAccumulator) Intersect(other *SemanticRefAccumulator) *SemanticRefAccumulator {
	out := &SemanticRefAccumulator{
		MatchAccumulator:  a.MatchAccumulator.Intersect(other.MatchAccumulator),
		searchTermMatches: make(map[string]bool),
	}
	for t := range a.searchTermMatches {
		out.searchTermMatches[t] = true
	}
	for t := range other.searchTermMatches {
		out.searchTermMatches[t] = true
	}
	return out
}

// ScoredSemanticRefOrdinal pairs a semantic-ref ordinal with its final
// accumulated score, the public projection of a Match.
type ScoredSemanticRefOrdinal struct {
	Ordinal SemanticRefOrdinal
	Score   float64
}

// ToScoredOrdinals folds related scores via CalculateTotalScore(nil) and
// projects the accumulator to a list sorted by descending score.
func (a *SemanticRefAccumulator) ToScoredOrdinals() []ScoredSemanticRefOrdinal {
	a.CalculateTotalScore(nil)
	sorted := a.GetSortedByScore(0)
	out := make([]ScoredSemanticRefOrdinal, len(sorted))
	for i, m := range sorted {
		out[i] = ScoredSemanticRefOrdinal{Ordinal: m.Value, Score: m.Score}
	}
	return out
}

// MessageAccumulator accumulates candidate messages, keyed by message
// ordinal.
type MessageAccumulator struct {
	*MatchAccumulator[MessageOrdinal]
}

// NewMessageAccumulator builds an empty MessageAccumulator.
func NewMessageAccumulator() *MessageAccumulator {
	return &MessageAccumulator{MatchAccumulator: NewMatchAccumulator[MessageOrdinal]()}
}

// AddFromSemanticRef folds score into every ordinal in messageOrdinals (the
// message ordinals spanned by one semantic ref's range). A message touched
// for the first time gets HitCount=1 and Score=score; a message touched
// again has its HitCount incremented and its Score max-merged (kept at
// whichever of the old/new score is larger) rather than summed — so a
// message's hit count, not its score, reflects how many distinct semantic
// refs reached it.
func (a *MessageAccumulator) AddFromSemanticRef(messageOrdinals []MessageOrdinal, score float64) {
	for _, ord := range messageOrdinals {
		m := a.getOrCreate(ord)
		if m.HitCount == 0 {
			m.HitCount = 1
			m.Score = score
			continue
		}
		m.HitCount++
		if score > m.Score {
			m.Score = score
		}
	}
}

// SmoothScores applies Score := smooth(Score, HitCount) to every match.
func (a *MessageAccumulator) SmoothScores() {
	for _, v := range a.order {
		m := a.matches[v]
		m.Score = rank.Smooth(m.Score, m.HitCount)
	}
}
