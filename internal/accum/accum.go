// Package accum implements the match accumulator algebra the query
// evaluator uses to collect, merge, and select candidate matches: a
// generic keyed multiset (MatchAccumulator[T]) plus the two concrete
// accumulators the evaluator actually works with, one keyed by semantic-ref
// ordinal and one keyed by message ordinal.
package accum

import (
	"sort"

	"github.com/sgx-labs/convsearch/internal/rank"
)

// Match is one accumulated candidate. hitCount counts exact contributions;
// relatedHitCount/relatedScore accumulate related-term contributions
// separately so they can be smoothed before folding into Score. Invariant:
// a stored Match always has HitCount >= 1.
type Match[T comparable] struct {
	Value           T
	HitCount        int
	Score           float64
	RelatedHitCount int
	RelatedScore    float64
}

// Scorer combines a Match's related-term contribution into its score.
// The default scorer adds smooth(relatedScore, relatedHitCount).
type Scorer[T comparable] func(m *Match[T])

// DefaultScorer folds relatedScore/relatedHitCount into Score via hit-count
// smoothing, leaving the related fields untouched (so callers know calling
// it twice adds the smoothed related contribution twice — see
// CalculateTotalScore's doc comment).
func DefaultScorer[T comparable](m *Match[T]) {
	m.Score += rank.Smooth(m.RelatedScore, m.RelatedHitCount)
}

// MatchAccumulator is a keyed multiset of Match[T], supporting the union/
// intersect/select operations the query operator tree composes queries
// from.
type MatchAccumulator[T comparable] struct {
	matches map[T]*Match[T]
	order   []T
}

// NewMatchAccumulator builds an empty accumulator.
func NewMatchAccumulator[T comparable]() *MatchAccumulator[T] {
	return &MatchAccumulator[T]{matches: make(map[T]*Match[T])}
}

func (a *MatchAccumulator[T]) getOrCreate(v T) *Match[T] {
	m, ok := a.matches[v]
	if !ok {
		m = &Match[T]{Value: v}
		a.matches[v] = m
		a.order = append(a.order, v)
	}
	return m
}

// AddExact records a direct index hit for v: first sighting sets
// HitCount=1, Score=score; subsequent sightings increment HitCount and add
// to Score.
func (a *MatchAccumulator[T]) AddExact(v T, score float64) {
	m := a.getOrCreate(v)
	if m.HitCount == 0 {
		m.HitCount = 1
		m.Score = score
		return
	}
	m.HitCount++
	m.Score += score
}

// AddRelated records a related-term hit for v: first sighting still sets
// HitCount=1 (so the value is reachable) but leaves Score untouched,
// recording the contribution in RelatedHitCount/RelatedScore instead.
// Subsequent related sightings only touch the related counters.
func (a *MatchAccumulator[T]) AddRelated(v T, score float64) {
	m := a.getOrCreate(v)
	if m.HitCount == 0 {
		m.HitCount = 1
		m.RelatedHitCount = 1
		m.RelatedScore = score
		return
	}
	m.RelatedHitCount++
	m.RelatedScore += score
}

// Len reports how many distinct values are currently accumulated.
func (a *MatchAccumulator[T]) Len() int {
	return len(a.order)
}

// Get returns the current Match for v, if any.
func (a *MatchAccumulator[T]) Get(v T) (Match[T], bool) {
	m, ok := a.matches[v]
	if !ok {
		return Match[T]{}, false
	}
	return *m, true
}

// Values returns every accumulated Match, in first-seen order.
func (a *MatchAccumulator[T]) Values() []Match[T] {
	out := make([]Match[T], 0, len(a.order))
	for _, v := range a.order {
		out = append(out, *a.matches[v])
	}
	return out
}

func sumMatch[T comparable](v T, a, b *Match[T]) Match[T] {
	return Match[T]{
		Value:           v,
		HitCount:        a.HitCount + b.HitCount,
		Score:           a.Score + b.Score,
		RelatedHitCount: a.RelatedHitCount + b.RelatedHitCount,
		RelatedScore:    a.RelatedScore + b.RelatedScore,
	}
}

// Union merges other into a new accumulator: values present in only one
// side are copied as-is, values present in both have every field summed.
func (a *MatchAccumulator[T]) Union(other *MatchAccumulator[T]) *MatchAccumulator[T] {
	out := NewMatchAccumulator[T]()
	for _, v := range a.order {
		m := *a.matches[v]
		out.matches[v] = &m
		out.order = append(out.order, v)
	}
	for _, v := range other.order {
		om := other.matches[v]
		if existing, ok := out.matches[v]; ok {
			merged := sumMatch(v, existing, om)
			out.matches[v] = &merged
		} else {
			m := *om
			out.matches[v] = &m
			out.order = append(out.order, v)
		}
	}
	return out
}

// Intersect returns a new accumulator containing only values present in
// both a and other, with every field summed.
func (a *MatchAccumulator[T]) Intersect(other *MatchAccumulator[T]) *MatchAccumulator[T] {
	out := NewMatchAccumulator[T]()
	for _, v := range a.order {
		am := a.matches[v]
		om, ok := other.matches[v]
		if !ok {
			continue
		}
		merged := sumMatch(v, am, om)
		out.matches[v] = &merged
		out.order = append(out.order, v)
	}
	return out
}

// AddMatch merges a fully-formed Match into the accumulator, summing every
// field if the value already exists. Useful when re-projecting matches
// computed elsewhere (e.g. after a scope filter) without replaying the
// original AddExact/AddRelated calls.
func (a *MatchAccumulator[T]) AddMatch(m Match[T]) {
	existing, ok := a.matches[m.Value]
	if !ok {
		mc := m
		a.matches[m.Value] = &mc
		a.order = append(a.order, m.Value)
		return
	}
	merged := sumMatch(m.Value, existing, &m)
	a.matches[m.Value] = &merged
}

// CalculateTotalScore folds each match's related contribution into its
// Score using scorer (DefaultScorer if nil). Calling this twice is NOT
// idempotent under DefaultScorer: it adds smooth(relatedScore,
// relatedHitCount) to Score again each time, since the related fields are
// never zeroed. Callers that need idempotence must use a scorer that zeros
// the related fields after folding, or call this exactly once per query.
func (a *MatchAccumulator[T]) CalculateTotalScore(scorer Scorer[T]) {
	if scorer == nil {
		scorer = DefaultScorer[T]
	}
	for _, v := range a.order {
		scorer(a.matches[v])
	}
}

// SelectWithHitCount discards every match whose hit count is below min,
// returning the number of matches that survived.
func (a *MatchAccumulator[T]) SelectWithHitCount(min int) int {
	kept := a.order[:0:0]
	for _, v := range a.order {
		if a.matches[v].HitCount >= min {
			kept = append(kept, v)
		} else {
			delete(a.matches, v)
		}
	}
	a.order = kept
	return len(a.order)
}

// GetMaxHitCount returns the largest hit count among current matches, or 0
// if the accumulator is empty.
func (a *MatchAccumulator[T]) GetMaxHitCount() int {
	max := 0
	for _, v := range a.order {
		if hc := a.matches[v].HitCount; hc > max {
			max = hc
		}
	}
	return max
}

// GetSortedByScore returns matches with HitCount >= minHitCount, sorted by
// descending score (does not mutate the accumulator, does not fold related
// scores — call CalculateTotalScore first if that's needed).
func (a *MatchAccumulator[T]) GetSortedByScore(minHitCount int) []Match[T] {
	out := make([]Match[T], 0, len(a.order))
	for _, v := range a.order {
		if m := a.matches[v]; m.HitCount >= minHitCount {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SelectTopNScoring folds related scores via CalculateTotalScore(nil),
// discards matches with HitCount < minHitCount, sorts by descending score,
// and truncates to maxMatches (<=0 means no limit) — mutating the
// accumulator in place to exactly that surviving set, which it also
// returns.
func (a *MatchAccumulator[T]) SelectTopNScoring(maxMatches, minHitCount int) []Match[T] {
	a.CalculateTotalScore(nil)
	a.SelectWithHitCount(minHitCount)
	sorted := a.GetSortedByScore(minHitCount)
	if maxMatches > 0 && maxMatches < len(sorted) {
		sorted = sorted[:maxMatches]
	}
	kept := make(map[T]bool, len(sorted))
	for _, m := range sorted {
		kept[m.Value] = true
	}
	newOrder := a.order[:0:0]
	for _, v := range a.order {
		if kept[v] {
			newOrder = append(newOrder, v)
		} else {
			delete(a.matches, v)
		}
	}
	a.order = newOrder
	return sorted
}
