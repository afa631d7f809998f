package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sgx-labs/convsearch/internal/ingest"
	"github.com/sgx-labs/convsearch/internal/rank"
)

// Client abstracts the chat-completion backend, the same narrow seam the
// teacher's graph.LLMClient cuts against internal/llm.Client so this
// package can be tested without a live model.
type Client interface {
	GenerateJSON(model, prompt string) (string, error)
}

// llmResponse is the expected JSON shape returned by the extraction
// prompt: one array per knowledge type, matching internal/kgraph's node
// vocabulary directly so a response needs no further classification.
type llmResponse struct {
	Entities []string `json:"entities"`
	Topics   []string `json:"topics"`
	Actions  []string `json:"actions"`
	Tags     []string `json:"tags"`
}

// llmExtractor mints entity/topic/action/tag candidates from a chat model,
// mirroring the teacher's LLMExtractor but asking for the flat knowledge-
// type vocabulary this domain uses instead of note/decision/concept graph
// nodes.
type llmExtractor struct {
	client Client
	model  string
}

func newLLMExtractor(client Client, model string) *llmExtractor {
	return &llmExtractor{client: client, model: model}
}

const maxExtractChars = 12000

func (e *llmExtractor) extract(text string) ([]ingest.Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}

	prompt := fmt.Sprintf(`You are a knowledge extractor for a conversation search index. Read the message below and extract the knowledge worth indexing.
Return ONLY a JSON object with four arrays: "entities", "topics", "actions", "tags".

- entities: named things mentioned (people, tools, libraries, products, systems)
- topics: subjects being discussed (concepts, features, problem areas)
- actions: decisions made or next steps stated
- tags: short freeform labels that categorize the message

Rules:
1. Normalize names (e.g. "go lang" -> "Go", "postgresql" -> "PostgreSQL").
2. Keep each entry to a few words.
3. Do not extract generic filler ("message", "conversation", "thing").
4. Omit any array that has nothing to report rather than padding it.

Message:
%s

JSON Output:`, text)

	raw, err := e.client.GenerateJSON(e.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm generation: %w", err)
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal llm response: %w\nResponse: %s", err, raw)
	}

	var candidates []ingest.Candidate
	add := func(knowledgeType rank.KnowledgeType, values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			candidates = append(candidates, ingest.Candidate{
				KnowledgeType: knowledgeType,
				Text:          v,
				Weight:        1.0,
			})
		}
	}
	add(rank.KnowledgeEntity, resp.Entities)
	add(rank.KnowledgeTopic, resp.Topics)
	add(rank.KnowledgeAction, resp.Actions)
	add(rank.KnowledgeTag, resp.Tags)

	return candidates, nil
}
