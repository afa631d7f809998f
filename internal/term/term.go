// Package term implements the domain vocabulary of the query engine: terms,
// search terms, property search terms, and the boolean search-term group
// tree that a query compiler lowers into an operator tree.
package term

import "strings"

// DefaultWeight is the weight applied to a Term whose Weight field is unset.
const DefaultWeight = 1.0

// Term is normalized search vocabulary: display text plus an optional
// contribution weight.
type Term struct {
	Text   string
	Weight *float64
}

// NewTerm builds a Term with prepared (trimmed, case-folded) text.
func NewTerm(text string) Term {
	return Term{Text: Prepare(text)}
}

// NewWeightedTerm builds a Term with an explicit weight.
func NewWeightedTerm(text string, weight float64) Term {
	t := NewTerm(text)
	t.Weight = &weight
	return t
}

// Prepare normalizes term text: trim surrounding whitespace, case-fold to
// lowercase. Two terms are equal iff their prepared text is equal.
func Prepare(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// WeightOrDefault returns the term's weight, falling back to override (if
// non-nil) and finally to DefaultWeight.
func (t Term) WeightOrDefault(override *float64) float64 {
	if t.Weight != nil {
		return *t.Weight
	}
	if override != nil {
		return *override
	}
	return DefaultWeight
}

// Equal reports whether two terms have the same prepared text.
func (t Term) Equal(other Term) bool {
	return Prepare(t.Text) == Prepare(other.Text)
}

// SearchTerm is a primary term plus an optional list of related terms
// (aliases or fuzzy neighbors) that contribute matches at a discounted
// weight. A SearchTerm may be marked Wildcard (always compilable, matches
// nothing via direct lookup, inhibits related-term resolution) or
// ExactMatchOnly (also inhibits related-term resolution but does perform a
// direct lookup).
type SearchTerm struct {
	Term           Term
	RelatedTerms   []Term
	Wildcard       bool
	ExactMatchOnly bool
}

// NewSearchTerm builds a plain SearchTerm from text.
func NewSearchTerm(text string) SearchTerm {
	return SearchTerm{Term: NewTerm(text)}
}

// SkipRelatedTermResolution reports whether the related-term resolver
// should leave this search term's RelatedTerms untouched.
func (s SearchTerm) SkipRelatedTermResolution() bool {
	return s.Wildcard || s.ExactMatchOnly
}

// KnowledgePropertyName is the closed set of well-known property names a
// PropertySearchTerm may target. The zero value (empty string) denotes "not
// a well-known property" — use PropertySearchTerm's FacetName variant instead.
type KnowledgePropertyName string

const (
	PropertyEntityName  KnowledgePropertyName = "entityName"
	PropertyEntityType  KnowledgePropertyName = "entityType"
	PropertyVerb        KnowledgePropertyName = "verb"
	PropertySubject     KnowledgePropertyName = "subject"
	PropertyObject      KnowledgePropertyName = "object"
	PropertyTag         KnowledgePropertyName = "tag"
	PropertyTopic       KnowledgePropertyName = "topic"
	PropertyFacetName   KnowledgePropertyName = "facetName"
	PropertyFacetValue  KnowledgePropertyName = "facetValue"
)

// PropertySearchTerm targets either a well-known KnowledgePropertyName or,
// when PropertyName is empty and FacetName is set, a free-form facet
// lookup keyed by (facet name term, facet value term).
type PropertySearchTerm struct {
	// PropertyName is set for the typed-property variant.
	PropertyName KnowledgePropertyName
	// FacetName is set (PropertyName left empty) for the free-form facet
	// variant; it denotes the facet's own name as a SearchTerm so it too
	// can carry related terms / wildcards.
	FacetName *SearchTerm
	// PropertyValue is always required — the value being matched.
	PropertyValue SearchTerm
}

// IsFacet reports whether this is the free-form facet-lookup variant.
func (p PropertySearchTerm) IsFacet() bool {
	return p.PropertyName == "" && p.FacetName != nil
}

// BooleanOp is the combination semantics of a SearchTermGroup.
type BooleanOp int

const (
	// And requires every term/child group to contribute a match.
	And BooleanOp = iota
	// Or unions the matches of every term/child group.
	Or
	// OrMax behaves like Or but keeps only matches touched by the maximal
	// number of children.
	OrMax
)

// GroupTerm is the sum type of what a SearchTermGroup may contain:
// a SearchTerm, a PropertySearchTerm, or a nested SearchTermGroup.
// Exactly one of the three fields is set.
type GroupTerm struct {
	SearchTerm         *SearchTerm
	PropertySearchTerm *PropertySearchTerm
	Group              *SearchTermGroup
}

// SearchTermGroup is the recursive boolean tree of search terms the
// compiler lowers into an operator tree.
type SearchTermGroup struct {
	BooleanOp BooleanOp
	Terms     []GroupTerm
}

// Walk visits every non-group SearchTerm/PropertySearchTerm reachable from
// g, including those nested in child groups, calling visit for each.
func (g *SearchTermGroup) Walk(visit func(*SearchTerm)) {
	for i := range g.Terms {
		t := &g.Terms[i]
		switch {
		case t.SearchTerm != nil:
			visit(t.SearchTerm)
		case t.PropertySearchTerm != nil:
			if t.PropertySearchTerm.IsFacet() && t.PropertySearchTerm.FacetName != nil {
				visit(t.PropertySearchTerm.FacetName)
			}
			visit(&t.PropertySearchTerm.PropertyValue)
		case t.Group != nil:
			t.Group.Walk(visit)
		}
	}
}
