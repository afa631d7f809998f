package ingest

import "testing"

func TestParseTranscriptReadsFrontmatter(t *testing.T) {
	content := "---\nsession_id: abc123\ntitle: Vector index setup\nparticipants:\n  - alice\n  - bob\ntags:\n  - sqlite\n---\n### Alice\nhello\n"

	parsed := ParseTranscript(content)
	if parsed.Meta.SessionID != "abc123" {
		t.Errorf("expected session_id abc123, got %q", parsed.Meta.SessionID)
	}
	if parsed.Meta.Title != "Vector index setup" {
		t.Errorf("expected title, got %q", parsed.Meta.Title)
	}
	if len(parsed.Meta.Participants) != 2 {
		t.Errorf("expected 2 participants, got %v", parsed.Meta.Participants)
	}
	if parsed.Body == content {
		t.Error("expected frontmatter to be stripped from the body")
	}
}

func TestParseTranscriptWithoutFrontmatterIsAllBody(t *testing.T) {
	content := "### Alice\njust a plain transcript\n"
	parsed := ParseTranscript(content)
	if parsed.Body != content {
		t.Errorf("expected entire content treated as body, got %q", parsed.Body)
	}
	if parsed.Meta.Title != "" {
		t.Errorf("expected no title parsed, got %q", parsed.Meta.Title)
	}
}
