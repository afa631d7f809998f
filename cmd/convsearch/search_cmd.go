package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/searchengine"
	"github.com/sgx-labs/convsearch/internal/store"
)

func searchCmd() *cobra.Command {
	var (
		maxChars int
		jsonOut  bool
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed conversation corpus",
		Long: `Search the indexed conversation corpus by entity, topic, action, or tag.

Examples:
  convsearch search "authentication decision"
  convsearch search --verbose "database schema"
  convsearch search --json "deploy pipeline" OR "release checklist"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(query, maxChars, jsonOut, verbose)
		},
	}
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Character budget for returned messages (0 = default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the boxed per-message result view")
	return cmd
}

func runSearch(query string, maxChars int, jsonOut bool, verbose bool) error {
	if strings.TrimSpace(query) == "" {
		return userError("Empty search query", `Provide a search term: convsearch search "your query"`)
	}

	db, err := store.Open()
	if err != nil {
		return config.ErrNoDatabase
	}
	defer db.Close()

	engine, err := openSearchEngine(db)
	if err != nil {
		return fmt.Errorf("open search engine: %w", err)
	}

	ctx := context.Background()
	result, err := engine.Search(ctx, query, searchengine.Options{MaxChars: maxChars})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	total, err := store.NewMessages(db).Count(ctx)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(result.Messages) == 0 {
		cli.NoMatches(total)
		return nil
	}

	conversations := store.NewConversations(db)
	messages := store.NewMessages(db)
	matches := make([]cli.MatchedMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		msg, err := messages.GetMessage(ctx, m.Value)
		if err != nil {
			continue
		}
		title := fmt.Sprintf("message %d", m.Value)
		if conv, err := conversations.ConversationForMessage(ctx, m.Value); err == nil {
			title = conv.Title
		}
		matches = append(matches, cli.MatchedMessage{
			Title: title,
			// The engine already trims to the char budget before returning,
			// so every message reaching this loop survived it.
			Chars:    len(msg.Text),
			Included: true,
			HighConf: m.Score >= 1.0,
		})
	}

	if verbose {
		cli.MatchesVerbose(matches, total)
		return nil
	}

	cli.MatchSummary(len(matches), total)
	return nil
}
