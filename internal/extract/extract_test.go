package extract

import (
	"context"
	"testing"

	"github.com/sgx-labs/convsearch/internal/rank"
)

func TestExtractRegexFindsActionAndTag(t *testing.T) {
	e := New()
	candidates, err := e.Extract(context.Background(), "We decided to switch the embedding provider to ollama. #infra")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	var sawAction, sawTag bool
	for _, c := range candidates {
		if c.KnowledgeType == rank.KnowledgeAction {
			sawAction = true
		}
		if c.KnowledgeType == rank.KnowledgeTag && c.Text == "infra" {
			sawTag = true
		}
	}
	if !sawAction {
		t.Errorf("expected an action candidate, got %+v", candidates)
	}
	if !sawTag {
		t.Errorf("expected tag candidate \"infra\", got %+v", candidates)
	}
}

func TestExtractWithoutLLMHasNoEntityCandidates(t *testing.T) {
	e := New()
	candidates, err := e.Extract(context.Background(), "claude helped debug the vector index")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	for _, c := range candidates {
		if c.KnowledgeType == rank.KnowledgeEntity {
			t.Errorf("expected no entity candidates without an LLM client, got %+v", candidates)
		}
	}
}

type fakeLLMClient struct {
	response string
}

func (f *fakeLLMClient) GenerateJSON(model, prompt string) (string, error) {
	return f.response, nil
}

func TestExtractWithLLMAddsEntityAndTopicCandidates(t *testing.T) {
	e := New()
	e.SetLLM(&fakeLLMClient{response: `{"entities": ["Claude"], "topics": ["vector search"]}`}, "test-model")

	candidates, err := e.Extract(context.Background(), "claude helped debug the vector index")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	var sawEntity, sawTopic bool
	for _, c := range candidates {
		if c.KnowledgeType == rank.KnowledgeEntity && c.Text == "Claude" {
			sawEntity = true
		}
		if c.KnowledgeType == rank.KnowledgeTopic && c.Text == "vector search" {
			sawTopic = true
		}
	}
	if !sawEntity || !sawTopic {
		t.Fatalf("expected entity and topic candidates from the LLM pass, got %+v", candidates)
	}
}

func TestExtractRejectsCancelledContext(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Extract(ctx, "anything"); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
