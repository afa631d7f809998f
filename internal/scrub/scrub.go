// Package scrub redacts injected or secret-bearing content out of ingested
// message text before it reaches the index, the same role the teacher's
// hooks.sanitizeSnippet plays for vault snippets surfaced back to a model
// — repointed at conversation turns on the way in instead of search
// results on the way out.
package scrub

import (
	"context"
	"strings"

	"github.com/mdombrov-33/go-promptguard/detector"
)

// legacyPatterns is the belt-and-suspenders fallback the teacher keeps
// alongside go-promptguard's statistical detector, kept here verbatim.
var legacyPatterns = []string{
	"ignore previous",
	"ignore all previous",
	"ignore above",
	"disregard previous",
	"disregard all previous",
	"you are now",
	"new instructions",
	"system prompt",
	"<system>",
	"</system>",
	"IMPORTANT:",
	"CRITICAL:",
	"override",
}

const redactedMarker = "[content filtered for security]"

// Scrubber runs go-promptguard's multi-detector (pattern matching plus
// statistical analysis) against message text, falling back to a legacy
// substring list, and replaces anything it flags with redactedMarker.
type Scrubber struct {
	guard *detector.Detector
}

// New builds a Scrubber with go-promptguard's full detector set enabled —
// the same options the teacher's package-level promptGuard uses, tuned
// for filtering ingested content rather than user input.
func New() *Scrubber {
	return &Scrubber{
		guard: detector.New(
			detector.WithThreshold(0.6),
			detector.WithAllDetectors(),
			detector.WithMaxInputLength(4000),
		),
	}
}

// Scrub reports the cleaned text and whether anything was redacted. It
// implements internal/ingest.Scrubber.
func (s *Scrubber) Scrub(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	if !s.guard.Detect(context.Background(), text).Safe {
		return redactedMarker, true
	}
	lower := strings.ToLower(text)
	for _, pattern := range legacyPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return redactedMarker, true
		}
	}
	return text, false
}
