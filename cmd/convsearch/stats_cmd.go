package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/kgraph"
	"github.com/sgx-labs/convsearch/internal/store"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many conversations, messages, and semantic refs are indexed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	db, err := store.Open()
	if err != nil {
		return config.ErrNoDatabase
	}
	defer db.Close()

	ctx := context.Background()
	convCount, err := store.NewConversations(db).Count(ctx)
	if err != nil {
		return fmt.Errorf("count conversations: %w", err)
	}
	msgCount, err := store.NewMessages(db).Count(ctx)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	refCount, err := store.NewSemanticRefs(db).Count(ctx)
	if err != nil {
		return fmt.Errorf("count semantic refs: %w", err)
	}

	graph := kgraph.NewDB(db.Conn())
	graphStats, graphErr := graph.GetStats()

	fmt.Println()
	fmt.Printf("  %sIndex Statistics%s\n\n", cli.Bold, cli.Reset)
	fmt.Printf("  %-22s %s\n", "Conversations:", cli.FormatNumber(convCount))
	fmt.Printf("  %-22s %s\n", "Messages:", cli.FormatNumber(msgCount))
	fmt.Printf("  %-22s %s\n", "Semantic refs:", cli.FormatNumber(refCount))
	fmt.Printf("  %-22s %s\n", "Embedding provider:", config.EmbeddingProvider())
	if graphErr == nil {
		fmt.Printf("  %-22s %s\n", "Graph nodes:", cli.FormatNumber(graphStats.TotalNodes))
		fmt.Printf("  %-22s %s\n", "Graph edges:", cli.FormatNumber(graphStats.TotalEdges))
	}
	fmt.Println()
	return nil
}
