// Package extern declares the external interfaces the query engine depends
// on but does not implement: term and property indices, a timestamp index,
// the semantic-ref and message collections themselves, a message
// similarity index, and the two related-term resolvers (alias and fuzzy).
// internal/store provides the concrete SQLite-backed implementations; the
// core engine only ever sees these interfaces.
//
// A lookup miss (nothing known about a term) is never an error: methods
// return a nil/empty result with a nil error in that case. A non-nil error
// always means something went wrong upstream (queryerr.ErrUpstreamFailure)
// or the call was cancelled (queryerr.ErrCancelled) — both are fatal to
// the query as a whole.
package extern

import (
	"context"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/scope"
	"github.com/sgx-labs/convsearch/internal/term"
)

// ScoredSemanticRefOrdinal pairs a semantic-ref ordinal with the weight a
// single index lookup assigns it, before accumulation.
type ScoredSemanticRefOrdinal struct {
	Ordinal accum.SemanticRefOrdinal
	Weight  float64
}

// TermToSemanticRefIndex resolves a prepared term's exact text to the
// semantic refs that mention it.
type TermToSemanticRefIndex interface {
	// LookupTerm returns the semantic refs for termText, or nil if the
	// index has never seen that term.
	LookupTerm(ctx context.Context, termText string) ([]ScoredSemanticRefOrdinal, error)
}

// PropertyToSemanticRefIndex resolves a well-known property name (or a
// free-form facet name) plus a value to the semantic refs carrying it.
type PropertyToSemanticRefIndex interface {
	LookupProperty(ctx context.Context, propertyName string, valueText string) ([]ScoredSemanticRefOrdinal, error)
}

// TimestampToTextRangeIndex resolves a [start, end) wall-clock window to
// the text ranges of messages whose timestamp falls within it.
type TimestampToTextRangeIndex interface {
	LookupRange(ctx context.Context, start, end time.Time) ([]scope.TextRange, error)
}

// SemanticRef is one extracted knowledge fact: a typed mention (entity,
// topic, action, or tag) anchored at a location in the conversation.
type SemanticRef struct {
	Ordinal       accum.SemanticRefOrdinal
	KnowledgeType rank.KnowledgeType
	Text          string
	Location      scope.TextLocation
}

// SemanticRefCollection gives ordinal-indexed access to extracted semantic
// refs, the unit the query operator tree accumulates matches over.
type SemanticRefCollection interface {
	GetSemanticRef(ctx context.Context, ordinal accum.SemanticRefOrdinal) (SemanticRef, error)
	Count(ctx context.Context) (int, error)
}

// Message is one turn of a conversation.
type Message struct {
	Ordinal   accum.MessageOrdinal
	Text      string
	Timestamp time.Time
}

// MessageCollection gives ordinal-indexed access to messages, and supports
// trimming a candidate list down to a character budget for final output.
type MessageCollection interface {
	GetMessage(ctx context.Context, ordinal accum.MessageOrdinal) (Message, error)
	Count(ctx context.Context) (int, error)
	// GetCountInCharBudget returns how many of the given ordinals (taken in
	// order) fit within charBudget characters of message text, so a caller
	// can trim a result list to an output size limit without fetching
	// every message's full text up front.
	GetCountInCharBudget(ctx context.Context, ordinals []accum.MessageOrdinal, charBudget int) (int, error)
}

// MessageTextIndex supports similarity re-ranking of messages against a
// free-text query, backed by a message embedding index.
type MessageTextIndex interface {
	// FindSimilar returns message ordinals ranked by embedding similarity
	// to queryText, most similar first, at most maxResults entries.
	FindSimilar(ctx context.Context, queryText string, maxResults int) ([]ScoredMessage, error)

	// FindSimilarInSubset behaves like FindSimilar but restricts the
	// ranking to ordinals, so a large candidate set can be narrowed down
	// to its most semantically relevant members instead of searching the
	// whole index.
	FindSimilarInSubset(ctx context.Context, queryText string, ordinals []accum.MessageOrdinal, maxResults int) ([]ScoredMessage, error)
}

// ScoredMessage pairs a message ordinal with a similarity score in [0, 1].
type ScoredMessage struct {
	Ordinal accum.MessageOrdinal
	Score   float64
}

// TermsToRelatedTerms resolves a term to its known aliases via an exact
// index pass (e.g. a synonym/acronym table).
type TermsToRelatedTerms interface {
	LookupRelatedTerms(ctx context.Context, termText string) ([]term.Term, error)
}

// TermToRelatedTermsFuzzy resolves a term to its nearest neighbors via an
// embedding index, for matches an exact alias table would miss.
type TermToRelatedTermsFuzzy interface {
	LookupFuzzy(ctx context.Context, termText string, maxMatches int, minScore float64) ([]term.Term, error)
}
