// Package scope implements text ranges and range collections used to
// restrict a query to a subset of a conversation: a WhenFilter compiles
// down to one TextRangeCollection per selector (date range, text range,
// knowledge-type restriction), and TextRangesInScope combines them with
// union-within-selector, intersection-across-selector semantics.
package scope

import "sort"

// TextLocation identifies a position within a conversation: which message,
// and which chunk within that message's text.
type TextLocation struct {
	MessageOrdinal uint64
	ChunkOrdinal   int
}

// Less orders locations by message then chunk.
func (l TextLocation) Less(other TextLocation) bool {
	if l.MessageOrdinal != other.MessageOrdinal {
		return l.MessageOrdinal < other.MessageOrdinal
	}
	return l.ChunkOrdinal < other.ChunkOrdinal
}

// Equal reports whether two locations are identical.
func (l TextLocation) Equal(other TextLocation) bool {
	return l.MessageOrdinal == other.MessageOrdinal && l.ChunkOrdinal == other.ChunkOrdinal
}

// TextRange is a half-open [Start, End) span over TextLocations. A nil End
// denotes a single-point range at Start (End is treated as Start's
// immediate successor for containment purposes).
type TextRange struct {
	Start TextLocation
	End   *TextLocation
}

// NewPointRange builds a single-point range at loc.
func NewPointRange(loc TextLocation) TextRange {
	return TextRange{Start: loc}
}

// end returns the effective exclusive end of the range for comparisons.
func (r TextRange) end() TextLocation {
	if r.End != nil {
		return *r.End
	}
	return TextLocation{MessageOrdinal: r.Start.MessageOrdinal, ChunkOrdinal: r.Start.ChunkOrdinal + 1}
}

// Contains reports whether loc falls within [Start, End).
func (r TextRange) Contains(loc TextLocation) bool {
	return !loc.Less(r.Start) && loc.Less(r.end())
}

// ContainsRange reports whether other is fully contained within r.
func (r TextRange) ContainsRange(other TextRange) bool {
	return !other.Start.Less(r.Start) && !r.end().Less(other.end())
}

// Intersects reports whether r and other overlap at all.
func (r TextRange) Intersects(other TextRange) bool {
	return r.Start.Less(other.end()) && other.Start.Less(r.end())
}

// TextRangeCollection is an ordered, sorted collection of TextRanges
// belonging to a single selector (e.g. "all ranges matching this date
// filter"). Locations are in scope for the collection if they fall within
// ANY of its ranges (union-within-selector).
type TextRangeCollection struct {
	ranges []TextRange
}

// NewTextRangeCollection builds an empty collection.
func NewTextRangeCollection() *TextRangeCollection {
	return &TextRangeCollection{}
}

// Add inserts r into the collection in sorted order by start location.
func (c *TextRangeCollection) Add(r TextRange) {
	i := sort.Search(len(c.ranges), func(i int) bool {
		return !c.ranges[i].Start.Less(r.Start)
	})
	c.ranges = append(c.ranges, TextRange{})
	copy(c.ranges[i+1:], c.ranges[i:])
	c.ranges[i] = r
}

// Len reports the number of ranges in the collection.
func (c *TextRangeCollection) Len() int {
	return len(c.ranges)
}

// Ranges returns the collection's ranges in sorted order.
func (c *TextRangeCollection) Ranges() []TextRange {
	return append([]TextRange(nil), c.ranges...)
}

// IsInRange reports whether loc falls within any range in the collection
// (the union-within-selector rule). Ranges are not assumed disjoint, so
// this is a linear scan rather than a binary search.
func (c *TextRangeCollection) IsInRange(loc TextLocation) bool {
	for _, r := range c.ranges {
		if r.Contains(loc) {
			return true
		}
	}
	return false
}

// TextRangesInScope combines one TextRangeCollection per active selector.
// A location is in scope only if it is in-range for every selector
// (intersection-across-selectors); within a single selector, being in any
// of its ranges suffices (union-within-selector). No selectors at all
// means everything is in scope.
type TextRangesInScope struct {
	selectors []*TextRangeCollection
}

// NewTextRangesInScope builds a scope from zero or more selector
// collections.
func NewTextRangesInScope(selectors ...*TextRangeCollection) *TextRangesInScope {
	return &TextRangesInScope{selectors: selectors}
}

// IsInScope reports whether loc satisfies every active selector.
func (s *TextRangesInScope) IsInScope(loc TextLocation) bool {
	for _, sel := range s.selectors {
		if sel == nil || sel.Len() == 0 {
			continue
		}
		if !sel.IsInRange(loc) {
			return false
		}
	}
	return true
}

// AddSelector appends another selector collection to the scope.
func (s *TextRangesInScope) AddSelector(c *TextRangeCollection) {
	s.selectors = append(s.selectors, c)
}
