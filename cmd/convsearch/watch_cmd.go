package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/store"
	"github.com/sgx-labs/convsearch/internal/watch"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the conversation corpus and re-index changed transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
}

func runWatch() error {
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

	fmt.Printf("Watching %s for changes. Press Ctrl+C to stop.\n", corpus)
	return watch.Watch(context.Background(), pipeline, corpus)
}
