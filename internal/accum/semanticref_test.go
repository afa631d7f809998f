package accum

import (
	"testing"

	"github.com/sgx-labs/convsearch/internal/term"
)

func TestScenarioSingleTermSingleHit(t *testing.T) {
	// Index contains "novel" -> [{17, 0.8}]. Query SearchTerm{"novel"}.
	a := NewSemanticRefAccumulator()
	novel := term.NewTerm("novel")
	a.AddTermMatches(novel, []ScoredOrdinal[SemanticRefOrdinal]{{Ordinal: 17, Score: 0.8}}, true, nil)

	if !a.HasSearchTermMatch("novel") {
		t.Error("expected \"novel\" recorded in searchTermMatches")
	}
	scored := a.ToScoredOrdinals()
	if len(scored) != 1 || scored[0].Ordinal != 17 || scored[0].Score != 0.8 {
		t.Fatalf("ToScoredOrdinals() = %+v, want [{17 0.8}]", scored)
	}
}

func TestScenarioRelatedTermExpansionWithoutDoubleCount(t *testing.T) {
	// Index: "novel" -> [{17,0.8}], "book" -> [{17,0.5},{22,0.6}].
	// Query SearchTerm{term:"novel", related:[{text:"book",weight:0.5}]}.
	a := NewSemanticRefAccumulator()
	novel := term.NewTerm("novel")
	a.AddTermMatches(novel, []ScoredOrdinal[SemanticRefOrdinal]{{Ordinal: 17, Score: 0.8}}, true, nil)

	book := term.NewWeightedTerm("book", 0.5)
	a.AddTermMatchesIfNew(novel, []ScoredOrdinal[SemanticRefOrdinal]{{Ordinal: 17, Score: 0.5}, {Ordinal: 22, Score: 0.6}}, false, book.Weight)

	m17, _ := a.Get(17)
	if m17.HitCount != 1 || m17.Score != 0.8 || m17.RelatedHitCount != 0 || m17.RelatedScore != 0 {
		t.Errorf("ordinal 17 = %+v, want HitCount=1 Score=0.8 RelatedHitCount=0 RelatedScore=0 (book skipped, already matched)", m17)
	}

	m22, ok := a.Get(22)
	if !ok {
		t.Fatal("expected ordinal 22 to be present via related term")
	}
	if m22.HitCount != 1 || m22.RelatedHitCount != 1 {
		t.Errorf("ordinal 22 = %+v, want HitCount=1 RelatedHitCount=1", m22)
	}
	wantRelatedScore := 0.6 * 0.5 // score * book's weight
	if m22.RelatedScore != wantRelatedScore {
		t.Errorf("ordinal 22 RelatedScore = %v, want %v", m22.RelatedScore, wantRelatedScore)
	}

	scored := a.ToScoredOrdinals()
	var s22 float64
	for _, s := range scored {
		if s.Ordinal == 22 {
			s22 = s.Score
		}
	}
	if s22 != wantRelatedScore {
		t.Errorf("after ToScoredOrdinals, ordinal 22 score = %v, want %v (smooth is identity at hitCount==1)", s22, wantRelatedScore)
	}
}

func TestMessageAccumulatorAddFromSemanticRefMaxMergesScore(t *testing.T) {
	a := NewMessageAccumulator()
	a.AddFromSemanticRef([]MessageOrdinal{1, 2}, 0.5)
	a.AddFromSemanticRef([]MessageOrdinal{2}, 0.9)
	a.AddFromSemanticRef([]MessageOrdinal{2}, 0.1)

	m2, _ := a.Get(2)
	if m2.HitCount != 3 {
		t.Errorf("message 2 HitCount = %d, want 3 (touched by 3 semantic refs)", m2.HitCount)
	}
	if m2.Score != 0.9 {
		t.Errorf("message 2 Score = %v, want 0.9 (max-merge, not sum)", m2.Score)
	}
	m1, _ := a.Get(1)
	if m1.HitCount != 1 || m1.Score != 0.5 {
		t.Errorf("message 1 = %+v, want HitCount=1 Score=0.5", m1)
	}
}

func TestMessageAccumulatorSmoothScores(t *testing.T) {
	a := NewMessageAccumulator()
	a.AddFromSemanticRef([]MessageOrdinal{1}, 10)
	a.AddFromSemanticRef([]MessageOrdinal{1}, 10)
	a.AddFromSemanticRef([]MessageOrdinal{1}, 10)
	before, _ := a.Get(1)
	a.SmoothScores()
	after, _ := a.Get(1)
	if after.Score == before.Score {
		t.Error("expected SmoothScores to change the score for a multiply-hit message")
	}
}
