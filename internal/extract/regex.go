package extract

import (
	"regexp"
	"strings"

	"github.com/sgx-labs/convsearch/internal/ingest"
	"github.com/sgx-labs/convsearch/internal/rank"
)

// Regex-extracted candidates are cheap, available without a chat model,
// and run whether or not an LLM client is configured.
var (
	reAction1 = regexp.MustCompile(`(?i)(?:decided|decision|chose|chosen|will|should):\s*(.+)`)
	reAction2 = regexp.MustCompile(`(?i)we (?:decided|chose|agreed) to\s+(.+?)(?:\.|$)`)
	reHashtag = regexp.MustCompile(`#([a-zA-Z][\w-]{1,40})`)
)

// extractRegex mines action and tag candidates out of raw text without any
// model call, the same role the teacher's extractDecisionsRegex/
// extractRegex play before its LLM pass runs.
func extractRegex(text string) []ingest.Candidate {
	var candidates []ingest.Candidate

	clean := stripFencedCodeBlocks(text)
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{reAction1, reAction2} {
		for _, match := range re.FindAllStringSubmatch(clean, -1) {
			if len(match) < 2 {
				continue
			}
			actionText, ok := normalizeActionText(match[1])
			if !ok {
				continue
			}
			if _, dup := seen[actionText]; dup {
				continue
			}
			seen[actionText] = struct{}{}
			candidates = append(candidates, ingest.Candidate{
				KnowledgeType: rank.KnowledgeAction,
				Text:          actionText,
				Weight:        1.0,
			})
		}
	}

	for _, match := range reHashtag.FindAllStringSubmatch(text, -1) {
		if len(match) < 2 {
			continue
		}
		tag := strings.ToLower(match[1])
		if _, dup := seen["tag:"+tag]; dup {
			continue
		}
		seen["tag:"+tag] = struct{}{}
		candidates = append(candidates, ingest.Candidate{
			KnowledgeType: rank.KnowledgeTag,
			Text:          tag,
			Weight:        1.0,
		})
	}

	return candidates
}

func stripFencedCodeBlocks(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func normalizeActionText(extracted string) (string, bool) {
	text := strings.TrimSpace(extracted)
	text = strings.Trim(text, "\"'`")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, ".,;:()[]{}")
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return "", false
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}

	lower := strings.ToLower(text)
	if strings.Contains(text, "&&") || strings.Contains(text, "|") || strings.Contains(text, ">") {
		return "", false
	}
	if strings.Contains(text, "`") || strings.Contains(lower, "...") {
		return "", false
	}
	if strings.Contains(lower, "(?:") || strings.Contains(lower, `\s`) || strings.Contains(lower, `\w`) || strings.Contains(lower, `\d`) {
		return "", false
	}

	return text, true
}
