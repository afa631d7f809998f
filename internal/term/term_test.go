package term

import "testing"

func TestPrepare(t *testing.T) {
	cases := map[string]string{
		"  Hello World  ": "hello world",
		"ALREADY":         "already",
		"":                "",
	}
	for in, want := range cases {
		if got := Prepare(in); got != want {
			t.Errorf("Prepare(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTermEqual(t *testing.T) {
	a := NewTerm("  Claude  ")
	b := NewTerm("claude")
	if !a.Equal(b) {
		t.Errorf("expected %q and %q to be equal after preparation", a.Text, b.Text)
	}
}

func TestWeightOrDefault(t *testing.T) {
	plain := NewTerm("x")
	if w := plain.WeightOrDefault(nil); w != DefaultWeight {
		t.Errorf("expected default weight %v, got %v", DefaultWeight, w)
	}
	override := 5.0
	if w := plain.WeightOrDefault(&override); w != 5.0 {
		t.Errorf("expected override weight 5.0, got %v", w)
	}
	weighted := NewWeightedTerm("y", 2.5)
	if w := weighted.WeightOrDefault(&override); w != 2.5 {
		t.Errorf("expected term's own weight 2.5 to win over override, got %v", w)
	}
}

func TestSkipRelatedTermResolution(t *testing.T) {
	plain := NewSearchTerm("x")
	if plain.SkipRelatedTermResolution() {
		t.Error("plain search term should not skip related-term resolution")
	}
	wild := SearchTerm{Term: NewTerm("*"), Wildcard: true}
	if !wild.SkipRelatedTermResolution() {
		t.Error("wildcard search term should skip related-term resolution")
	}
	exact := SearchTerm{Term: NewTerm("x"), ExactMatchOnly: true}
	if !exact.SkipRelatedTermResolution() {
		t.Error("exact-match-only search term should skip related-term resolution")
	}
}

func TestPropertySearchTermIsFacet(t *testing.T) {
	typed := PropertySearchTerm{PropertyName: PropertyEntityName, PropertyValue: NewSearchTerm("Claude")}
	if typed.IsFacet() {
		t.Error("typed property term should not report IsFacet")
	}
	facetName := NewSearchTerm("color")
	facet := PropertySearchTerm{FacetName: &facetName, PropertyValue: NewSearchTerm("blue")}
	if !facet.IsFacet() {
		t.Error("free-form facet term should report IsFacet")
	}
}

func TestSearchTermGroupWalk(t *testing.T) {
	inner := SearchTermGroup{
		BooleanOp: Or,
		Terms: []GroupTerm{
			{SearchTerm: ptr(NewSearchTerm("alpha"))},
			{SearchTerm: ptr(NewSearchTerm("beta"))},
		},
	}
	outer := SearchTermGroup{
		BooleanOp: And,
		Terms: []GroupTerm{
			{Group: &inner},
			{PropertySearchTerm: &PropertySearchTerm{PropertyName: PropertyTag, PropertyValue: NewSearchTerm("gamma")}},
		},
	}
	var seen []string
	outer.Walk(func(s *SearchTerm) {
		seen = append(seen, s.Term.Text)
	})
	want := []string{"alpha", "beta", "gamma"}
	if len(seen) != len(want) {
		t.Fatalf("Walk visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Walk()[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func ptr(s SearchTerm) *SearchTerm { return &s }
