package term

import "testing"

func TestTermSetAddOrUnionDedupByPreparedText(t *testing.T) {
	s := NewTermSet()
	s.AddOrUnion(NewWeightedTerm("Claude", 1.0))
	s.AddOrUnion(NewWeightedTerm("  claude  ", 3.0))
	if s.Len() != 1 {
		t.Fatalf("expected 1 distinct term, got %d", s.Len())
	}
	got := s.Terms()[0]
	if got.WeightOrDefault(nil) != 3.0 {
		t.Errorf("expected max weight 3.0 to win, got %v", got.WeightOrDefault(nil))
	}
}

func TestTermSetKeepsLowerWeightWhenHigherSeenFirst(t *testing.T) {
	s := NewTermSet()
	s.AddOrUnion(NewWeightedTerm("x", 5.0))
	s.AddOrUnion(NewWeightedTerm("x", 1.0))
	if got := s.Terms()[0].WeightOrDefault(nil); got != 5.0 {
		t.Errorf("expected weight to stay at 5.0, got %v", got)
	}
}

func TestTermSetHasAndInsertionOrder(t *testing.T) {
	s := NewTermSet()
	s.AddOrUnion(NewTerm("b"))
	s.AddOrUnion(NewTerm("a"))
	if !s.Has("B") {
		t.Error("expected Has to match regardless of case")
	}
	terms := s.Terms()
	if terms[0].Text != "b" || terms[1].Text != "a" {
		t.Errorf("expected insertion order preserved, got %+v", terms)
	}
}

func TestPropertyTermSetDedupByNameAndValue(t *testing.T) {
	s := NewPropertyTermSet()
	s.AddOrUnion(PropertySearchTerm{PropertyName: PropertyTag, PropertyValue: NewWeightedTerm("x", 1).asSearchTerm()})
	s.AddOrUnion(PropertySearchTerm{PropertyName: PropertyTag, PropertyValue: NewWeightedTerm("x", 4).asSearchTerm()})
	if s.Len() != 1 {
		t.Fatalf("expected 1 distinct property term, got %d", s.Len())
	}
	if got := s.Terms()[0].PropertyValue.Term.WeightOrDefault(nil); got != 4 {
		t.Errorf("expected max weight 4, got %v", got)
	}
}

func (term Term) asSearchTerm() SearchTerm {
	return SearchTerm{Term: term}
}
