package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/convsearch/internal/cli"
	"github.com/sgx-labs/convsearch/internal/config"
	"github.com/sgx-labs/convsearch/internal/kgraph"
	"github.com/sgx-labs/convsearch/internal/store"
)

func doctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and diagnose issues",
		Long:  "Runs health checks on your convsearch setup: verifies the corpus path, the database, the knowledge graph, and the embedding provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

type doctorResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "skip", "fail"
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func runDoctor(jsonOut bool) error {
	passed := 0
	failed := 0
	var results []doctorResult

	embedAvailable := false
	if embedder, err := newEmbedProvider(); err == nil {
		if _, err := embedder.GetQueryEmbedding("test"); err == nil {
			embedAvailable = true
		}
	}

	check := func(name, hint string, fn func() (string, error)) {
		detail, err := fn()
		if err != nil {
			if jsonOut {
				results = append(results, doctorResult{Name: name, Status: "fail", Message: err.Error(), Hint: hint})
			} else {
				fmt.Printf("  %s✗%s %s: %s\n", cli.Red, cli.Reset, name, err)
				if hint != "" {
					fmt.Printf("    → %s\n", hint)
				}
			}
			failed++
			return
		}
		if jsonOut {
			results = append(results, doctorResult{Name: name, Status: "pass", Message: detail})
		} else if detail != "" {
			fmt.Printf("  %s✓%s %s (%s)\n", cli.Green, cli.Reset, name, detail)
		} else {
			fmt.Printf("  %s✓%s %s\n", cli.Green, cli.Reset, name)
		}
		passed++
	}

	skip := func(name, reason string) {
		if jsonOut {
			results = append(results, doctorResult{Name: name, Status: "skip", Message: reason})
		} else {
			fmt.Printf("  %s-%s %s: %s\n", cli.Dim, cli.Reset, name, reason)
		}
	}

	if !jsonOut {
		cli.Header("convsearch Health Check")
		fmt.Println()
	}

	check("Corpus path", "run 'convsearch init' or set CONVSEARCH_CORPUS", func() (string, error) {
		corpus := config.CorpusPath()
		if corpus == "" {
			return "", fmt.Errorf("no corpus found")
		}
		info, err := os.Stat(corpus)
		if err != nil {
			return "", fmt.Errorf("path does not exist")
		}
		if !info.IsDir() {
			return "", fmt.Errorf("not a directory")
		}
		return corpus, nil
	})

	check("Database", "run 'convsearch index' to build it", func() (string, error) {
		db, err := store.Open()
		if err != nil {
			return "", fmt.Errorf("cannot open")
		}
		defer db.Close()
		if err := db.IntegrityCheck(); err != nil {
			return "", fmt.Errorf("integrity check failed: %w", err)
		}
		n, err := store.NewConversations(db).Count(context.Background())
		if err != nil {
			return "", fmt.Errorf("cannot query")
		}
		return fmt.Sprintf("%s conversation(s) indexed", cli.FormatNumber(n)), nil
	})

	check("Knowledge graph", "run 'convsearch index' to populate it", func() (string, error) {
		db, err := store.Open()
		if err != nil {
			return "", fmt.Errorf("cannot open database")
		}
		defer db.Close()
		stats, err := kgraph.NewDB(db.Conn()).GetStats()
		if err != nil {
			return "", fmt.Errorf("cannot query graph")
		}
		return fmt.Sprintf("%s nodes, %s edges", cli.FormatNumber(stats.TotalNodes), cli.FormatNumber(stats.TotalEdges)), nil
	})

	if embedAvailable {
		check("Embedding provider", "start Ollama or configure an OpenAI-compatible endpoint", func() (string, error) {
			embedder, err := newEmbedProvider()
			if err != nil {
				return "", fmt.Errorf("not connected (keyword search still works)")
			}
			return fmt.Sprintf("connected via %s", embedder.Name()), nil
		})
	} else {
		skip("Embedding provider", "unavailable — keyword search only")
	}

	if !jsonOut {
		fmt.Println()
	}

	if jsonOut {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("  %d passed, %d failed\n\n", passed, failed)
	}

	if failed > 0 {
		return fmt.Errorf("doctor found %d issue(s)", failed)
	}
	return nil
}
