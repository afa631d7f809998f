package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/store"
)

// ingestCmd builds the "index" command, aliased to "ingest" since that's
// the verb the rest of the package (internal/ingest) uses for the same
// operation.
func ingestCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "index",
		Aliases: []string{"ingest"},
		Short:   "Scan the conversation corpus and build or update the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest every transcript regardless of whether it changed")
	return cmd
}

func runIngest(force bool) error {
	corpus := config.CorpusPath()
	if corpus == "" {
		return config.ErrNoCorpus
	}

	db, err := store.Open()
	if err != nil {
		return config.ErrNoDatabase
	}
	defer db.Close()

	pipeline, err := openPipeline(db)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}

	stats, err := pipeline.IngestDir(context.Background(), corpus, force)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	fmt.Println()
	fmt.Printf("  %sIndex complete%s\n\n", cli.Bold, cli.Reset)
	fmt.Printf("  Files scanned:         %d\n", stats.TotalFiles)
	fmt.Printf("  Newly ingested:        %d\n", stats.Ingested)
	fmt.Printf("  Unchanged:             %d\n", stats.SkippedUnchanged)
	if stats.Errors > 0 {
		fmt.Printf("  Errors:                %s%d%s\n", cli.Yellow, stats.Errors, cli.Reset)
	}
	fmt.Printf("  Conversations indexed: %d\n", stats.ConversationsInIndex)
	fmt.Printf("  Messages indexed:      %d\n", stats.MessagesInIndex)
	fmt.Printf("  Semantic refs indexed: %d\n", stats.SemanticRefsInIndex)
	fmt.Printf("\n  %sTip: run 'convsearch watch' to auto-reindex as transcripts change.%s\n", cli.Dim, cli.Reset)
	return nil
}
