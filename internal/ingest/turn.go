package ingest

import (
	"regexp"
	"strings"
	"time"
)

// Turn is one speaker turn within a transcript body.
type Turn struct {
	Speaker   string
	Text      string
	Timestamp time.Time // zero if the transcript didn't carry one
}

// turnHeading matches a turn delimiter of the form "### Speaker" or
// "### Speaker | 2026-07-29T10:00:00Z".
var turnHeading = regexp.MustCompile(`(?m)^###[ \t]+([^|\n]+?)(?:[ \t]*\|[ \t]*(\S+))?[ \t]*$`)

// SplitTurns splits a transcript body into turns delimited by "### Speaker"
// headings, the same heading-delimited chunking idiom the teacher applies
// to note sections, repointed at conversation turns instead of markdown
// sections. A body with no heading at all comes back as a single
// speakerless turn rather than being dropped, so a freeform transcript
// still ingests.
func SplitTurns(body string) []Turn {
	locs := turnHeading.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		text := strings.TrimSpace(body)
		if text == "" {
			return nil
		}
		return []Turn{{Text: text}}
	}

	var turns []Turn
	for i, loc := range locs {
		speaker := strings.TrimSpace(body[loc[2]:loc[3]])
		var ts time.Time
		if loc[4] != -1 {
			if parsed, err := time.Parse(time.RFC3339, body[loc[4]:loc[5]]); err == nil {
				ts = parsed
			}
		}
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(body[loc[1]:end])
		if text == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text, Timestamp: ts})
	}
	return turns
}
