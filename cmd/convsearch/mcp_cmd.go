package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/mcpserver"
	"github.com/sgx-labs/convsearch/internal/store"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search_conversations MCP tool over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open()
			if err != nil {
				return config.ErrNoDatabase
			}
			defer db.Close()

			engine, err := openSearchEngine(db)
			if err != nil {
				return fmt.Errorf("open search engine: %w", err)
			}

			mcpserver.Version = Version
			return mcpserver.Serve(db, engine)
		},
	}
}
