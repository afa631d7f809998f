package store

import (
	"context"
	"testing"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/rank"
)

func TestOpenMemoryMigratesSchema(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	if v := db.SchemaVersion(); v < 2 {
		t.Fatalf("expected schema version >= 2 after migration, got %d", v)
	}
	if err := db.IntegrityCheck(); err != nil {
		t.Fatalf("IntegrityCheck error: %v", err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	msgs := NewMessages(db)
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ord, err := msgs.AddMessage(ctx, 1, "hello world", ts)
	if err != nil {
		t.Fatalf("AddMessage error: %v", err)
	}

	got, err := msgs.GetMessage(ctx, ord)
	if err != nil {
		t.Fatalf("GetMessage error: %v", err)
	}
	if got.Text != "hello world" {
		t.Errorf("expected text %q, got %q", "hello world", got.Text)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, got.Timestamp)
	}

	count, err := msgs.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 message, got %d", count)
	}
}

func TestMessagesGetCountInCharBudget(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	msgs := NewMessages(db)
	ctx := context.Background()
	ts := time.Now()

	o1, _ := msgs.AddMessage(ctx, 1, "123456789", ts)  // 9 chars
	o2, _ := msgs.AddMessage(ctx, 1, "1234567890", ts) // 10 chars

	n, err := msgs.GetCountInCharBudget(ctx, []accum.MessageOrdinal{o1, o2}, 15)
	if err != nil {
		t.Fatalf("GetCountInCharBudget error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the first message to fit a 15 char budget, got %d", n)
	}
}

func TestSemanticRefsRoundTrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	refs := NewSemanticRefs(db)
	ctx := context.Background()

	ord, err := refs.AddSemanticRef(ctx, 1, 0, rank.KnowledgeEntity, "Claude")
	if err != nil {
		t.Fatalf("AddSemanticRef error: %v", err)
	}

	got, err := refs.GetSemanticRef(ctx, ord)
	if err != nil {
		t.Fatalf("GetSemanticRef error: %v", err)
	}
	if got.KnowledgeType != rank.KnowledgeEntity || got.Text != "Claude" {
		t.Errorf("unexpected semantic ref: %+v", got)
	}
	if got.Location.MessageOrdinal != 1 {
		t.Errorf("expected message ordinal 1, got %d", got.Location.MessageOrdinal)
	}
}

func TestTermIndexLookupRoundTrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	idx := NewTermIndex(db)
	ctx := context.Background()

	if err := idx.AddTerm(ctx, "Claude", 42, 10); err != nil {
		t.Fatalf("AddTerm error: %v", err)
	}

	hits, err := idx.LookupTerm(ctx, "claude")
	if err != nil {
		t.Fatalf("LookupTerm error: %v", err)
	}
	if len(hits) != 1 || hits[0].Ordinal != 42 {
		t.Fatalf("expected one hit for ordinal 42, got %+v", hits)
	}

	miss, err := idx.LookupTerm(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("LookupTerm error on miss: %v", err)
	}
	if len(miss) != 0 {
		t.Fatalf("expected no hits for an unseen term, got %+v", miss)
	}
}

func TestPropertyIndexLookupRoundTrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	idx := NewPropertyIndex(db)
	ctx := context.Background()

	if err := idx.AddProperty(ctx, "name", "Claude", 7, 10); err != nil {
		t.Fatalf("AddProperty error: %v", err)
	}

	hits, err := idx.LookupProperty(ctx, "name", "Claude")
	if err != nil {
		t.Fatalf("LookupProperty error: %v", err)
	}
	if len(hits) != 1 || hits[0].Ordinal != 7 {
		t.Fatalf("expected one hit for ordinal 7, got %+v", hits)
	}
}

func TestTimestampIndexLookupRange(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	msgs := NewMessages(db)
	ts := NewTimestampIndex(db)
	ctx := context.Background()

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, _ = msgs.AddMessage(ctx, 1, "early message", early)
	_, _ = msgs.AddMessage(ctx, 1, "late message", late)

	ranges, err := ts.LookupRange(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LookupRange error: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected exactly 1 message in the early-only range, got %d", len(ranges))
	}
	if ranges[0].Start.MessageOrdinal != 0 {
		t.Errorf("expected the early message's ordinal 0, got %d", ranges[0].Start.MessageOrdinal)
	}
}

func TestConversationsRoundTripAndDelete(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	convs := NewConversations(db)
	msgs := NewMessages(db)
	refs := NewSemanticRefs(db)
	terms := NewTermIndex(db)
	ctx := context.Background()

	id, err := convs.AddConversation(ctx, "test session", "/tmp/session1.md")
	if err != nil {
		t.Fatalf("AddConversation error: %v", err)
	}

	found, ok, err := convs.FindBySourcePath(ctx, "/tmp/session1.md")
	if err != nil {
		t.Fatalf("FindBySourcePath error: %v", err)
	}
	if !ok || found.ID != id {
		t.Fatalf("expected to find conversation %d, got %+v (ok=%v)", id, found, ok)
	}

	msgOrdinal, err := msgs.AddMessage(ctx, id, "hello claude", time.Now())
	if err != nil {
		t.Fatalf("AddMessage error: %v", err)
	}
	refOrdinal, err := refs.AddSemanticRef(ctx, msgOrdinal, 0, rank.KnowledgeEntity, "claude")
	if err != nil {
		t.Fatalf("AddSemanticRef error: %v", err)
	}
	if err := terms.AddTerm(ctx, "claude", refOrdinal, 1.0); err != nil {
		t.Fatalf("AddTerm error: %v", err)
	}

	owner, err := convs.ConversationForMessage(ctx, msgOrdinal)
	if err != nil {
		t.Fatalf("ConversationForMessage error: %v", err)
	}
	if owner.ID != id || owner.Title != "test session" {
		t.Fatalf("expected conversation %d %q, got %+v", id, "test session", owner)
	}

	if err := convs.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("DeleteConversation error: %v", err)
	}

	if _, ok, err := convs.FindBySourcePath(ctx, "/tmp/session1.md"); err != nil || ok {
		t.Fatalf("expected conversation to be gone after delete, ok=%v err=%v", ok, err)
	}
	if _, err := msgs.GetMessage(ctx, msgOrdinal); err == nil {
		t.Error("expected message to be deleted along with its conversation")
	}
	matches, err := terms.LookupTerm(ctx, "claude")
	if err != nil {
		t.Fatalf("LookupTerm error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected term index entries to be cleaned up, got %v", matches)
	}
}
