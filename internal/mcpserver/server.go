// Package mcpserver implements the MCP server for convsearch.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/convsearch/internal/compiler"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/searchengine"
	"github.com/sgx-labs/convsearch/internal/store"
)

const maxQueryLen = 10_000

var engine *searchengine.Engine
var messages *store.Messages
var conversations *store.Conversations

// Version is set by the caller (main) before calling Serve.
var Version = "dev"

// Serve starts the MCP server on stdio over an already-open store and
// search engine. Both are supplied by the caller (cmd/convsearch) so this
// package stays decoupled from config/store wiring decisions.
func Serve(db *store.DB, eng *searchengine.Engine) error {
	engine = eng
	messages = store.NewMessages(db)
	conversations = store.NewConversations(db)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "convsearch",
		Version: Version,
	}, nil)

	registerTools(server)

	return server.Run(context.Background(), &mcp.StdioTransport{})
}

func registerTools(server *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_conversations",
		Description: "Search the indexed conversation corpus for messages matching a query. The query supports quoted phrases and an uppercase OR between terms (AND is the default between terms). Use this when you need prior context, a past decision, or background on a topic raised in an earlier conversation.\n\nArgs:\n  query: Free-text search query (e.g. 'authentication approach' or \"JWT\" OR \"session token\")\n  top_k: Max semantic-ref matches per knowledge type (default 10, max 100)\n  knowledge_types: Optional filter — entity, topic, action, tag\n  start_time / end_time: Optional RFC3339 bounds on message timestamp\n\nReturns matched messages with their source conversation title and match score.",
		Annotations: readOnly,
	}, handleSearchConversations)
}

type searchConversationsInput struct {
	Query          string   `json:"query" jsonschema:"Free-text search query"`
	TopK           int      `json:"top_k,omitempty" jsonschema:"Max matches per knowledge type (default 10, max 100)"`
	KnowledgeTypes []string `json:"knowledge_types,omitempty" jsonschema:"Filter by knowledge type: entity, topic, action, tag"`
	StartTime      string   `json:"start_time,omitempty" jsonschema:"RFC3339 lower bound on message timestamp"`
	EndTime        string   `json:"end_time,omitempty" jsonschema:"RFC3339 upper bound on message timestamp"`
}

type searchConversationsResult struct {
	Messages []matchedMessage `json:"messages"`
}

type matchedMessage struct {
	Ordinal          uint64  `json:"ordinal"`
	ConversationID   int64   `json:"conversation_id,omitempty"`
	ConversationName string  `json:"conversation_title,omitempty"`
	Text             string  `json:"text"`
	Score            float64 `json:"score"`
}

func handleSearchConversations(ctx context.Context, req *mcp.CallToolRequest, input searchConversationsInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return textResult("Error: query is required."), nil, nil
	}
	if len(input.Query) > maxQueryLen {
		return textResult("Error: query too long (max 10,000 characters)."), nil, nil
	}
	if engine == nil {
		return textResult("Error: search engine not initialized."), nil, nil
	}

	when, err := buildWhenFilter(input)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %s", err)), nil, nil
	}

	result, err := engine.Search(ctx, input.Query, searchengine.Options{
		When:            when,
		MaxResultGroups: clampTopK(input.TopK, 10),
	})
	if err != nil {
		return textResult(fmt.Sprintf("Search error: %s. Try running 'convsearch index' first.", err)), nil, nil
	}

	if len(result.Messages) == 0 {
		return textResult("No results found. The index may be empty — try running 'convsearch index' first."), nil, nil
	}

	out := searchConversationsResult{Messages: make([]matchedMessage, 0, len(result.Messages))}
	for _, m := range result.Messages {
		msg, err := messages.GetMessage(ctx, m.Value)
		if err != nil {
			continue
		}
		mm := matchedMessage{
			Ordinal: uint64(m.Value),
			Text:    msg.Text,
			Score:   m.Score,
		}
		if conv, err := conversations.ConversationForMessage(ctx, m.Value); err == nil {
			mm.ConversationID = conv.ID
			mm.ConversationName = conv.Title
		}
		out.Messages = append(out.Messages, mm)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return textResult(fmt.Sprintf("Error: %s", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func buildWhenFilter(input searchConversationsInput) (*compiler.WhenFilter, error) {
	if len(input.KnowledgeTypes) == 0 && input.StartTime == "" && input.EndTime == "" {
		return nil, nil
	}

	when := &compiler.WhenFilter{}
	for _, kt := range input.KnowledgeTypes {
		when.KnowledgeTypes = append(when.KnowledgeTypes, rank.KnowledgeType(kt))
	}

	if input.StartTime != "" || input.EndTime != "" {
		start, end := time.Time{}, time.Now()
		if input.StartTime != "" {
			t, err := time.Parse(time.RFC3339, input.StartTime)
			if err != nil {
				return nil, fmt.Errorf("invalid start_time: %w", err)
			}
			start = t
		}
		if input.EndTime != "" {
			t, err := time.Parse(time.RFC3339, input.EndTime)
			if err != nil {
				return nil, fmt.Errorf("invalid end_time: %w", err)
			}
			end = t
		}
		when.DateRanges = append(when.DateRanges, compiler.DateRange{Start: start, End: end})
	}

	return when, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func clampTopK(topK, defaultVal int) int {
	if topK <= 0 {
		return defaultVal
	}
	if topK > 100 {
		return 100
	}
	return topK
}
