// Package searchengine wires the query engine's layers — term vocabulary,
// compiler, evaluator, and reranker — behind one Search entrypoint, so the
// CLI and the MCP server build the pipeline the same way instead of each
// hand-assembling a Compiler and calling queryeval.Evaluate directly. There
// is no teacher equivalent of this wiring: the teacher's search command
// called straight into a vector-similarity search, with no boolean
// term-query language in front of it, so ParseQuery below is new code
// shaped to match internal/term's own vocabulary rather than ported from
// anywhere in the pack.
package searchengine

import (
	"strings"
	"unicode"

	"github.com/sgx-labs/convsearch/internal/term"
)

// ParseQuery turns free text into a SearchTermGroup: quoted phrases become
// a single term, an uppercase "OR" between two terms switches the group's
// boolean op to Or for the whole query, and everything else is split on
// whitespace. Wildly ambiguous mixes of AND/OR aren't a goal here — a user
// typing a handful of keywords is the common case, not a boolean query
// language.
func ParseQuery(query string) *term.SearchTermGroup {
	words := tokenizeQuery(query)
	op := term.And
	var terms []string
	for _, w := range words {
		if w == "OR" && len(terms) > 0 {
			op = term.Or
			continue
		}
		terms = append(terms, w)
	}

	group := &term.SearchTermGroup{BooleanOp: op}
	for _, w := range terms {
		st := term.NewSearchTerm(w)
		group.Terms = append(group.Terms, term.GroupTerm{SearchTerm: &st})
	}
	return group
}

// tokenizeQuery splits query on whitespace, keeping double-quoted phrases
// as single tokens (quotes stripped, literal "OR" inside a phrase kept as
// plain text rather than treated as the boolean operator).
func tokenizeQuery(query string) []string {
	var tokens []string
	var buf strings.Builder
	inQuote := false

	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return tokens
}
