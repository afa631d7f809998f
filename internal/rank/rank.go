// Package rank implements the scoring math shared by the match accumulator
// and the query operators: hit-count smoothing, entity score boosting, and
// the fixed-precision rounding the teacher's own search ranking uses.
package rank

import "math"

// DefaultWeight is the contribution weight applied to a match when no
// term-specific weight overrides it.
const DefaultWeight = 10.0

// DefaultEntityWeight is the multiplier applied to a match's score when its
// knowledge type is "entity" and no caller-supplied weight overrides it.
const DefaultEntityWeight = 100.0

// KnowledgeType enumerates the kinds of semantic ref a match can carry.
type KnowledgeType string

const (
	KnowledgeEntity KnowledgeType = "entity"
	KnowledgeTopic  KnowledgeType = "topic"
	KnowledgeAction KnowledgeType = "action"
	KnowledgeTag    KnowledgeType = "tag"
)

// Smooth dampens the contribution of a match that accumulated many hits,
// so that ten weak hits don't outscore one strong one:
//
//	smooth(total, hits) = 0                       if hits <= 0
//	                     = total                   if hits == 1
//	                     = ln(hits+1) * (total/hits) otherwise
func Smooth(total float64, hits int) float64 {
	if hits <= 0 {
		return 0
	}
	if hits == 1 {
		return total
	}
	return math.Log(float64(hits)+1) * (total / float64(hits))
}

// BoostEntities multiplies score by weight iff knowledgeType is "entity".
// weight defaults to DefaultEntityWeight/DefaultWeight when nil — the
// compiler passes that same ratio explicitly as its entity booster.
func BoostEntities(score float64, knowledgeType KnowledgeType, weight *float64) float64 {
	if knowledgeType != KnowledgeEntity {
		return score
	}
	w := DefaultEntityWeight / DefaultWeight
	if weight != nil {
		w = *weight
	}
	return score * w
}

// Round3 rounds a float to 3 decimal places, the precision the teacher's
// search ranking reports scores at.
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Round1 rounds a float to 1 decimal place.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}
