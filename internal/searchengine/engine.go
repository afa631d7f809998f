package searchengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sgx-labs/convsearch/internal/compiler"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryeval"
	"github.com/sgx-labs/convsearch/internal/related"
	"github.com/sgx-labs/convsearch/internal/rerank"
)

// DefaultMaxChars bounds the final message list returned from a search
// when the caller doesn't override it, keeping a CLI/MCP response to a
// size that fits comfortably in a model's context window.
const DefaultMaxChars = 16_000

// DefaultMaxSimilarityMessages bounds how many messages the similarity
// rank keeps before the char-budget trim, when the caller doesn't override
// it and a MessageTextIndex is available.
const DefaultMaxSimilarityMessages = 50

// Engine holds the query engine's external dependencies and compiles/
// evaluates/reranks a free-text query against them. One Engine is built
// per open store.DB and reused across searches.
type Engine struct {
	compiler  *compiler.Compiler
	messages  extern.MessageCollection
	textIndex extern.MessageTextIndex
}

// New builds an Engine from the store-backed indices and collections a
// compiled query needs. relatedResolver may be nil to skip alias/fuzzy
// term expansion entirely. textIndex may be nil to skip similarity
// re-ranking entirely (e.g. no embedding provider configured).
func New(
	termIndex extern.TermToSemanticRefIndex,
	propertyIndex extern.PropertyToSemanticRefIndex,
	semanticRefs extern.SemanticRefCollection,
	timestamps extern.TimestampToTextRangeIndex,
	relatedResolver *related.Resolver,
	messages extern.MessageCollection,
	textIndex extern.MessageTextIndex,
) *Engine {
	return &Engine{
		compiler:  compiler.New(termIndex, propertyIndex, semanticRefs, timestamps, relatedResolver),
		messages:  messages,
		textIndex: textIndex,
	}
}

// Options tunes one Search call. Zero value runs with sensible defaults:
// every knowledge type, no date/text-range scope, a DefaultMaxChars budget,
// a DefaultMaxSimilarityMessages similarity cap.
type Options struct {
	When                  *compiler.WhenFilter
	Search                compiler.SearchOptions
	MaxResultGroups       int
	MinHitCount           int
	MaxChars              int
	MaxSimilarityMessages int
}

// Search parses queryText, compiles it against the engine's indices,
// evaluates the resulting operator tree, and reranks the matched messages
// by lexical overlap with the query before returning them.
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) (*queryeval.Result, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("searchengine: query must not be empty")
	}

	group := ParseQuery(queryText)
	searchOpts := opts.Search
	if searchOpts == (compiler.SearchOptions{}) {
		searchOpts = compiler.DefaultSearchOptions()
	}

	root, ec, err := e.compiler.Compile(ctx, group, opts.When, searchOpts)
	if err != nil {
		return nil, fmt.Errorf("searchengine: compile: %w", err)
	}

	maxChars := opts.MaxChars
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	maxSimilarity := opts.MaxSimilarityMessages
	if maxSimilarity == 0 {
		maxSimilarity = DefaultMaxSimilarityMessages
	}

	result, err := queryeval.Evaluate(ctx, root, ec, queryeval.Options{
		MaxSemanticRefsPerGroup: opts.MaxResultGroups,
		MinHitCount:             opts.MinHitCount,
		MaxChars:                maxChars,
		Messages:                e.messages,
		MaxSimilarityMessages:   maxSimilarity,
		TextIndex:               e.textIndex,
		QueryText:               queryText,
	})
	if err != nil {
		return nil, fmt.Errorf("searchengine: evaluate: %w", err)
	}

	queryWords := rerank.QueryWordsForOverlap(queryText)
	reranked, err := rerank.Messages(ctx, e.messages, result.Messages, queryWords)
	if err != nil {
		return nil, fmt.Errorf("searchengine: rerank: %w", err)
	}
	result.Messages = reranked

	return result, nil
}
