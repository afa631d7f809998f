package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/store"
)

func initCmd() *cobra.Command {
	var (
		yes   bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init [corpus-path]",
		Short: "Point convsearch at a conversation corpus (start here)",
		Long: `Sets up convsearch against a directory of conversation transcripts.

What it does:
  1. Resolves the corpus directory (argument, CONVSEARCH_CORPUS, or cwd)
  2. Writes a default .convsearch/config.toml
  3. Opens (creating if needed) the search database
  4. Runs an initial index pass

Run 'convsearch index' again any time the corpus changes, or 'convsearch watch'
to keep it current automatically.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus := ""
			if len(args) == 1 {
				corpus = args[0]
			}
			return runInit(corpus, yes, force)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Accept defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest every transcript even if already indexed")
	return cmd
}

func runInit(corpusArg string, yes bool, force bool) error {
	cli.Banner(Version)

	corpus := corpusArg
	if corpus == "" {
		if cwd, err := os.Getwd(); err == nil {
			corpus = cwd
		}
	}
	abs, err := filepath.Abs(corpus)
	if err != nil {
		return fmt.Errorf("resolve corpus path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return userError(fmt.Sprintf("corpus path does not exist: %s", abs),
			"Pass a directory of conversation transcripts: convsearch init /path/to/transcripts")
	}
	config.CorpusOverride = abs

	configPath := config.ConfigFilePath(abs)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.GenerateConfig(abs); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Wrote %s\n", cli.ShortenHome(configPath))
	} else {
		fmt.Printf("  Using existing config at %s\n", cli.ShortenHome(configPath))
	}

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pipeline, err := openPipeline(db)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}

	fmt.Println("  Indexing corpus...")
	stats, err := pipeline.IngestDir(context.Background(), abs, force)
	if err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	fmt.Println()
	fmt.Printf("  %sReady.%s %d conversation(s), %d message(s), %d semantic ref(s) indexed.\n",
		cli.Bold, cli.Reset, stats.ConversationsInIndex, stats.MessagesInIndex, stats.SemanticRefsInIndex)
	fmt.Printf("\n  Next: convsearch search \"your query\"\n")
	cli.Footer()
	return nil
}
