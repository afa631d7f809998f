// Package main is the entrypoint for the convsearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "convsearch",
		Short: "Searchable memory for your AI conversations",
		Long: `convsearch indexes your AI conversation transcripts and lets you search them
by entity, topic, action, or tag, the same knowledge-graph-backed search a
coding assistant's memory layer runs internally, exposed as a standalone
tool and an MCP server.

Quick Start:
  convsearch init    Point convsearch at a conversation corpus
  convsearch ingest  Build the search index
  convsearch search  Query it

Need help? https://github.com/sgx-labs/convsearch`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(initCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	root.PersistentFlags().StringVar(&config.CorpusOverride, "corpus", "", "Conversation corpus path (overrides auto-detect)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the convsearch version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("convsearch %s\n", Version)
			return nil
		},
	}
}

// convsearchError is a user-facing error with an actionable hint, the same
// shape the teacher's sameError carries for every CLI-surfaced failure.
type convsearchError struct {
	message string
	hint    string
}

func (e *convsearchError) Error() string {
	return fmt.Sprintf("%s\n  Hint: %s", e.message, e.hint)
}

func userError(message, hint string) error {
	return &convsearchError{message: message, hint: hint}
}
