package searchengine

import (
	"context"
	"testing"
	"time"

	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	convs := store.NewConversations(db)
	msgs := store.NewMessages(db)
	refs := store.NewSemanticRefs(db)
	terms := store.NewTermIndex(db)
	props := store.NewPropertyIndex(db)
	ts := store.NewTimestampIndex(db)

	ctx := context.Background()
	convID, err := convs.AddConversation(ctx, "infra chat", "infra.md")
	if err != nil {
		t.Fatalf("AddConversation: %v", err)
	}

	msgOrdinal, err := msgs.AddMessage(ctx, convID, "we decided to use kubernetes for deployment", time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	refOrdinal, err := refs.AddSemanticRef(ctx, msgOrdinal, 0, rank.KnowledgeEntity, "kubernetes")
	if err != nil {
		t.Fatalf("AddSemanticRef: %v", err)
	}
	if err := terms.AddTerm(ctx, "kubernetes", refOrdinal, 1.0); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}

	engine := New(terms, props, refs, ts, nil, msgs, nil)
	return engine, db
}

func TestSearchFindsMessageByTerm(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.Search(context.Background(), "kubernetes", Options{})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 matching message, got %d: %+v", len(result.Messages), result.Messages)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Search(context.Background(), "   ", Options{}); err == nil {
		t.Fatal("expected an error for an empty query")
	}
}

func TestParseQueryHandlesQuotedPhraseAndOr(t *testing.T) {
	group := ParseQuery(`"load balancer" OR nginx`)
	if len(group.Terms) != 2 {
		t.Fatalf("expected 2 terms, got %d: %+v", len(group.Terms), group.Terms)
	}
	if group.Terms[0].SearchTerm.Term.Text != "load balancer" {
		t.Errorf("expected quoted phrase to stay one term, got %q", group.Terms[0].SearchTerm.Term.Text)
	}
}
