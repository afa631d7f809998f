package queryeval

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/queryop"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/scope"
	"github.com/sgx-labs/convsearch/internal/term"
)

type fakeTermIndex struct {
	hits map[string][]extern.ScoredSemanticRefOrdinal
}

func (f *fakeTermIndex) LookupTerm(ctx context.Context, termText string) ([]extern.ScoredSemanticRefOrdinal, error) {
	return f.hits[term.Prepare(termText)], nil
}

type fakeSemanticRefs struct {
	refs map[accum.SemanticRefOrdinal]extern.SemanticRef
}

func (f *fakeSemanticRefs) GetSemanticRef(ctx context.Context, ordinal accum.SemanticRefOrdinal) (extern.SemanticRef, error) {
	ref, ok := f.refs[ordinal]
	if !ok {
		return extern.SemanticRef{}, errors.New("not found")
	}
	return ref, nil
}

func (f *fakeSemanticRefs) Count(ctx context.Context) (int, error) {
	return len(f.refs), nil
}

type fakeMessages struct {
	lengths map[accum.MessageOrdinal]int
}

func (f *fakeMessages) GetMessage(ctx context.Context, ordinal accum.MessageOrdinal) (extern.Message, error) {
	return extern.Message{Ordinal: ordinal}, nil
}

func (f *fakeMessages) Count(ctx context.Context) (int, error) {
	return len(f.lengths), nil
}

// GetCountInCharBudget returns the largest prefix of ordinals whose summed
// text length fits within charBudget.
func (f *fakeMessages) GetCountInCharBudget(ctx context.Context, ordinals []accum.MessageOrdinal, charBudget int) (int, error) {
	total := 0
	for i, ord := range ordinals {
		total += f.lengths[ord]
		if total > charBudget {
			return i, nil
		}
	}
	return len(ordinals), nil
}

func loc(msg uint64) scope.TextLocation {
	return scope.TextLocation{MessageOrdinal: msg}
}

// fakeTextIndex scores a fixed subset of ordinals and records whichever
// subset it was asked to rank, so tests can assert RankMessagesBySimilarity
// restricted the lookup to the accumulator's own candidates.
type fakeTextIndex struct {
	scores     map[accum.MessageOrdinal]float64
	calledWith []accum.MessageOrdinal
}

func (f *fakeTextIndex) FindSimilar(ctx context.Context, queryText string, maxResults int) ([]extern.ScoredMessage, error) {
	return nil, errors.New("FindSimilar should not be called when a candidate subset is known")
}

func (f *fakeTextIndex) FindSimilarInSubset(ctx context.Context, queryText string, ordinals []accum.MessageOrdinal, maxResults int) ([]extern.ScoredMessage, error) {
	f.calledWith = append([]accum.MessageOrdinal(nil), ordinals...)
	out := make([]extern.ScoredMessage, 0, len(ordinals))
	for _, o := range ordinals {
		out = append(out, extern.ScoredMessage{Ordinal: o, Score: f.scores[o]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if maxResults < len(out) {
		out = out[:maxResults]
	}
	return out, nil
}

func TestEvaluateProjectsToMessagesAndSmooths(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {{Ordinal: 1, Weight: 10}, {Ordinal: 2, Weight: 10}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, KnowledgeType: rank.KnowledgeTopic, Location: loc(5)},
		2: {Ordinal: 2, KnowledgeType: rank.KnowledgeEntity, Location: loc(5)},
	}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}

	result, err := Evaluate(context.Background(), root, ec, Options{})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected both matches to project onto 1 message, got %d", len(result.Messages))
	}
	entityGroup := result.Groups[rank.KnowledgeEntity].SemanticRefMatches
	topicGroup := result.Groups[rank.KnowledgeTopic].SemanticRefMatches
	if len(entityGroup) != 1 || len(topicGroup) != 1 {
		t.Fatalf("expected one match per group, got entity=%d topic=%d", len(entityGroup), len(topicGroup))
	}
	if entityGroup[0].Score <= topicGroup[0].Score {
		t.Errorf("expected entity group score %v boosted above topic group score %v", entityGroup[0].Score, topicGroup[0].Score)
	}
	if len(result.Groups[rank.KnowledgeEntity].TermMatches) == 0 {
		t.Errorf("expected the entity group to carry its contributing search terms")
	}
}

func TestEvaluateMaxSemanticRefsPerGroupTrims(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {{Ordinal: 1, Weight: 1}, {Ordinal: 2, Weight: 100}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, Location: loc(1)},
		2: {Ordinal: 2, Location: loc(2)},
	}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}

	result, err := Evaluate(context.Background(), root, ec, Options{MaxSemanticRefsPerGroup: 1})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	group := result.Groups[rank.KnowledgeType("")].SemanticRefMatches
	if len(group) != 1 {
		t.Fatalf("expected top-1 trim per group, got %d", len(group))
	}
	if group[0].Ordinal != 2 {
		t.Errorf("expected the higher-scoring ordinal to survive, got %v", group[0].Ordinal)
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{}}
	ec := &queryop.EvalContext{TermIndex: idx, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}
	if _, err := Evaluate(ctx, root, ec, Options{}); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}

func TestEvaluatePropagatesDataCorruptionFromMissingSemanticRef(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {{Ordinal: 99, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}
	if _, err := Evaluate(context.Background(), root, ec, Options{}); err == nil {
		t.Fatal("expected an error when a matched ordinal has no backing semantic ref")
	}
}

func TestEvaluateRanksBySimilarityWhenOverBudget(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {{Ordinal: 1, Weight: 1}, {Ordinal: 2, Weight: 1}, {Ordinal: 3, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, Location: loc(1)},
		2: {Ordinal: 2, Location: loc(2)},
		3: {Ordinal: 3, Location: loc(3)},
	}}
	text := &fakeTextIndex{scores: map[accum.MessageOrdinal]float64{1: 0.1, 2: 0.9, 3: 0.5}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}

	result, err := Evaluate(context.Background(), root, ec, Options{
		MaxSimilarityMessages: 2,
		TextIndex:             text,
		QueryText:             "claude",
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected the similarity rank to cap the candidate set at 2 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].Value != 2 {
		t.Errorf("expected the highest-similarity message (2) to rank first, got %v", result.Messages[0].Value)
	}
	if len(text.calledWith) != 3 {
		t.Errorf("expected the similarity index to see all 3 candidate ordinals, got %v", text.calledWith)
	}
}

func TestEvaluateSkipsSimilarityRankWithinBudget(t *testing.T) {
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {{Ordinal: 1, Weight: 1}},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, Location: loc(1)},
	}}
	text := &fakeTextIndex{scores: map[accum.MessageOrdinal]float64{}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}

	result, err := Evaluate(context.Background(), root, ec, Options{
		MaxSimilarityMessages: 5,
		TextIndex:             text,
		QueryText:             "claude",
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected the sole message to pass through, got %d", len(result.Messages))
	}
	if text.calledWith != nil {
		t.Errorf("expected the similarity index to be skipped when already within budget, got %v", text.calledWith)
	}
}

func TestScenarioCharBudgetKeepsLargestFittingPrefix(t *testing.T) {
	// Four messages sorted by score with lengths [300,400,500,200] and a
	// budget of 1000 chars: 300+400=700 fits, +500=1200 does not, so only
	// the first two survive regardless of the fourth message's length.
	idx := &fakeTermIndex{hits: map[string][]extern.ScoredSemanticRefOrdinal{
		"claude": {
			{Ordinal: 1, Weight: 4},
			{Ordinal: 2, Weight: 3},
			{Ordinal: 3, Weight: 2},
			{Ordinal: 4, Weight: 1},
		},
	}}
	refs := &fakeSemanticRefs{refs: map[accum.SemanticRefOrdinal]extern.SemanticRef{
		1: {Ordinal: 1, Location: loc(1)},
		2: {Ordinal: 2, Location: loc(2)},
		3: {Ordinal: 3, Location: loc(3)},
		4: {Ordinal: 4, Location: loc(4)},
	}}
	messages := &fakeMessages{lengths: map[accum.MessageOrdinal]int{
		1: 300, 2: 400, 3: 500, 4: 200,
	}}
	ec := &queryop.EvalContext{TermIndex: idx, SemanticRefs: refs, MatchedTerms: make(map[string]bool)}
	root := queryop.TermLookup{SearchTerm: term.NewSearchTerm("claude")}

	result, err := Evaluate(context.Background(), root, ec, Options{MaxChars: 1000, Messages: messages})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected char budget to keep only 2 messages, got %d", len(result.Messages))
	}
}
