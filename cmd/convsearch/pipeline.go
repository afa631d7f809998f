package main

import (
	"fmt"

	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/embedding"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/extract"
	"github.com/sgx-labs/convsearch/internal/ingest"
	"github.com/sgx-labs/convsearch/internal/kgraph"
	"github.com/sgx-labs/convsearch/internal/llm"
	"github.com/sgx-labs/convsearch/internal/relatedfuzzy"
	"github.com/sgx-labs/convsearch/internal/related"
	"github.com/sgx-labs/convsearch/internal/scrub"
	"github.com/sgx-labs/convsearch/internal/searchengine"
	"github.com/sgx-labs/convsearch/internal/store"
)

// newEmbedProvider builds an embedding provider from config, the same
// shape the teacher's cmd/same uses to keep every command consistent
// about how a provider is resolved.
func newEmbedProvider() (embedding.Provider, error) {
	ec := config.EmbeddingProviderConfig()
	cfg := embedding.ProviderConfig{
		Provider:   ec.Provider,
		Model:      ec.Model,
		APIKey:     ec.APIKey,
		Dimensions: ec.Dimensions,
	}

	if cfg.Provider == "ollama" || cfg.Provider == "" {
		ollamaURL, err := config.OllamaURL()
		if err != nil {
			return nil, fmt.Errorf("ollama URL: %w", err)
		}
		cfg.BaseURL = ollamaURL
	} else {
		cfg.BaseURL = ec.BaseURL
	}

	return embedding.NewProvider(cfg)
}

// openPipeline builds a fully wired ingest.Pipeline against db: an
// embedding provider, a regex+LLM extractor (LLM layered in only when
// config.ExtractLLMMode() opts in), the privacy scrubber, the fuzzy
// term index, and the knowledge graph. Any component whose backend is
// unavailable (no Ollama, no chat provider) is left nil rather than
// failing the whole command — ingest still works keyword-only.
func openPipeline(db *store.DB) (*ingest.Pipeline, error) {
	embedder, err := newEmbedProvider()
	if err != nil {
		embedder = nil
	}

	extractor := extract.New()
	switch config.ExtractLLMMode() {
	case "on", "local-only":
		localOnly := config.ExtractLLMMode() == "local-only"
		if client, err := llm.NewClientWithOptions(llm.Options{LocalOnly: localOnly}); err == nil {
			extractor.SetLLM(client, "")
		}
	}

	pipeline := ingest.New(db, embedder, extractor, scrub.New())

	fuzzy := relatedfuzzy.New(db.Conn(), embedder)
	pipeline.FuzzyIndex = fuzzy

	graph := kgraph.NewDB(db.Conn())
	if err := graph.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate graph: %w", err)
	}
	pipeline.Graph = graph

	return pipeline, nil
}

// openSearchEngine builds a searchengine.Engine against db's term,
// property, semantic-ref, timestamp, and message collections, with a
// related-term resolver backed by the knowledge graph's alias edges and
// the fuzzy term-embedding index. The message similarity index is left
// nil when no embedding provider is available, so the engine falls back
// to lexical-only matching rather than failing outright.
func openSearchEngine(db *store.DB) (*searchengine.Engine, error) {
	embedder, err := newEmbedProvider()
	if err != nil {
		embedder = nil
	}

	terms := store.NewTermIndex(db)
	props := store.NewPropertyIndex(db)
	refs := store.NewSemanticRefs(db)
	ts := store.NewTimestampIndex(db)
	msgs := store.NewMessages(db)

	graph := kgraph.NewDB(db.Conn())
	fuzzy := relatedfuzzy.New(db.Conn(), embedder)
	resolver := related.NewResolver(graph, fuzzy)

	var textIndex extern.MessageTextIndex
	if embedder != nil {
		textIndex = store.NewMessageTextIndex(db, embedder)
	}

	return searchengine.New(terms, props, refs, ts, resolver, msgs, textIndex), nil
}
