// Package extract implements internal/ingest.Extractor: turning one chunk
// of message text into entity/topic/action/tag semantic-ref candidates.
// A cheap regex pass always runs; an optional chat-completion pass
// (internal/llm) adds model-driven extraction on top, the same
// regex-then-LLM layering the teacher's internal/graph.Extractor uses for
// notes.
package extract

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/ingest"
)

// Extractor implements ingest.Extractor.
type Extractor struct {
	llm *llmExtractor
}

// New builds an Extractor with regex-only extraction. Call SetLLM to layer
// a chat-completion pass on top.
func New() *Extractor {
	return &Extractor{}
}

// SetLLM enables LLM-based extraction using client/model, the same opt-in
// shape as the teacher's Extractor.SetLLM.
func (e *Extractor) SetLLM(client Client, model string) {
	e.llm = newLLMExtractor(client, model)
}

// Extract returns every candidate the regex pass and (if enabled) the LLM
// pass find in text.
func (e *Extractor) Extract(ctx context.Context, text string) ([]ingest.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	candidates := extractRegex(text)

	if e.llm != nil {
		llmCandidates, err := e.llm.extract(text)
		if err != nil {
			return nil, fmt.Errorf("llm extraction: %w", err)
		}
		candidates = append(candidates, llmCandidates...)
	}

	return candidates, nil
}
