package ingest

import "testing"

func TestSplitTurnsParsesSpeakerAndTimestamp(t *testing.T) {
	body := "### Alice | 2026-07-29T10:00:00Z\nhow do I configure the vector index?\n\n### Bob\nyou set EmbeddingDim in config.\n"

	turns := SplitTurns(body)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Speaker != "Alice" {
		t.Errorf("expected speaker Alice, got %q", turns[0].Speaker)
	}
	if turns[0].Timestamp.IsZero() {
		t.Error("expected a parsed timestamp for the first turn")
	}
	if turns[0].Text != "how do I configure the vector index?" {
		t.Errorf("unexpected first turn text: %q", turns[0].Text)
	}
	if turns[1].Speaker != "Bob" {
		t.Errorf("expected speaker Bob, got %q", turns[1].Speaker)
	}
	if !turns[1].Timestamp.IsZero() {
		t.Error("expected no timestamp on the second turn")
	}
}

func TestSplitTurnsNoHeadingsReturnsSingleTurn(t *testing.T) {
	turns := SplitTurns("just some freeform notes with no speaker headings")
	if len(turns) != 1 {
		t.Fatalf("expected a single fallback turn, got %d", len(turns))
	}
	if turns[0].Speaker != "" {
		t.Errorf("expected no speaker for a headingless body, got %q", turns[0].Speaker)
	}
}

func TestSplitTurnsEmptyBodyReturnsNoTurns(t *testing.T) {
	if turns := SplitTurns("   \n  "); turns != nil {
		t.Errorf("expected no turns for a blank body, got %+v", turns)
	}
}
