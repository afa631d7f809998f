// Package ingest walks a directory of conversation transcripts, parses
// each one's frontmatter and turn-delimited body, and populates every
// store-backed index the query engine reads from.
package ingest

import (
	"strings"

	"github.com/adrg/frontmatter"
)

// TranscriptMeta holds a transcript file's parsed frontmatter: enough to
// label the conversation without requiring an extraction pass over the
// body.
type TranscriptMeta struct {
	SessionID    string   `yaml:"session_id"`
	Title        string   `yaml:"title"`
	Participants []string `yaml:"participants"`
	Tags         []string `yaml:"tags"`
	Source       string   `yaml:"source"`
}

// ParsedTranscript holds a transcript file's frontmatter and turn-delimited
// body.
type ParsedTranscript struct {
	Meta TranscriptMeta
	Body string
}

// ParseTranscript parses a transcript file's frontmatter and body. A
// frontmatter parse failure is not fatal — the whole content is treated as
// body instead, so a plain-text transcript with no frontmatter still
// ingests.
func ParseTranscript(content string) ParsedTranscript {
	var meta TranscriptMeta
	body, err := frontmatter.Parse(strings.NewReader(content), &meta)
	if err != nil {
		return ParsedTranscript{Body: content}
	}
	return ParsedTranscript{Meta: meta, Body: string(body)}
}
